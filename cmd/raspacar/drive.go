package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/frudas24/raspacar/internal/client"
	"github.com/frudas24/raspacar/internal/joystick"
	"github.com/frudas24/raspacar/internal/tui"
)

// DriveCmd connects to a car and runs the terminal joystick.
type DriveCmd struct {
	Server      string        `default:"http://raspacar.local:5000" env:"RASPACAR_SERVER" help:"Car server base URL."`
	Password    string        `env:"RASPACAR_PASSWORD" help:"Page password, when the car runs in password mode."`
	AskPassword bool          `short:"p" help:"Prompt for the password."`
	Radius      float64       `default:"50" help:"Stick travel in widget units."`
	Timeout     time.Duration `default:"5s" help:"Login and dial timeout."`
	LogFile     string        `help:"Write logs here while the joystick is on screen." type:"path"`
}

// Run logs in if needed, dials the control socket and blocks in the TUI.
func (c *DriveCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	password := c.Password
	if c.AskPassword && password == "" {
		p, err := promptPassword()
		if err != nil {
			return err
		}
		password = p
	}

	if password != "" {
		loginCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		err := client.Login(loginCtx, &http.Client{Timeout: c.Timeout}, c.Server, password)
		cancel()
		if err != nil {
			return err
		}
	}

	wsURL, err := client.WebSocketURL(c.Server)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	conn, err := client.Dial(dialCtx, wsURL, client.Options{WriteTimeout: time.Second})
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()
	if g.Debug {
		log.Printf("drive: connected to %s", wsURL)
	}

	states := make(chan joystick.ConnState, 4)
	conn.OnStateChange(func(s joystick.ConnState) {
		select {
		case states <- s:
		default:
		}
	})

	model, err := tui.New(tui.Options{
		Sender:    conn,
		States:    states,
		MaxRadius: c.Radius,
		Server:    c.Server,
	})
	if err != nil {
		return err
	}

	restoreLog, err := c.redirectLog()
	if err != nil {
		return err
	}
	defer restoreLog()

	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err = program.Run()
	// Leave the car at rest whatever ended the program.
	_ = conn.Send(joystick.Command{})
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// redirectLog keeps log output off the alternate screen.
func (c *DriveCmd) redirectLog() (func(), error) {
	prev := log.Writer()
	if c.LogFile == "" {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(prev) }, nil
	}
	f, err := tea.LogToFile(c.LogFile, "drive")
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return func() {
		log.SetOutput(prev)
		_ = f.Close()
	}, nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password prompt needs a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
