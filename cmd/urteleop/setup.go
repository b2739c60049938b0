package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/urteleop/pkg/robot"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Config string `long:"config" description:"Session configuration file (.json, .yaml; default urteleop.json)"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("UR Teleop Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, loaded, err := readConfig(c.Config)
	if err != nil {
		return err
	}
	if loaded {
		fmt.Printf("Editing %s\n\n", configPath(c.Config))
	}

	frequency := strconv.FormatFloat(cfg.Recording.Frequency, 'f', -1, 64)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Controller address").
				Description("IP address or hostname of the robot controller").
				Value(&cfg.Host).
				Validate(validateHost),
			huh.NewInput().
				Title("Program").
				Description("Program file on the controller, played with '2'").
				Value(&cfg.Program).
				Validate(notEmpty("program")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Recording output").
				Description("CSV file written during the session").
				Value(&cfg.Recording.Output).
				Validate(notEmpty("output")),
			huh.NewInput().
				Title("Recording configuration").
				Description("RTDE recipe XML; leave empty to record the published fields").
				Value(&cfg.Recording.ConfigFile),
			huh.NewInput().
				Title("Frequency (Hz)").
				Value(&frequency).
				Validate(validateFrequency),
			huh.NewConfirm().
				Title("Overwrite existing recordings?").
				Value(&cfg.Recording.Overwrite),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return err
	}

	if err := applySetup(cfg, frequency); err != nil {
		return err
	}
	if err := saveConfig(cfg, c.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", configPath(c.Config))
	if cfg.Recording.ConfigFile != "" && !robot.FileExists(cfg.Recording.ConfigFile) {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Note: %s does not exist yet", cfg.Recording.ConfigFile)))
	}
	fmt.Println()
	fmt.Println("Start teleoperation with: " + headerStyle.Render("urteleop teleoperate"))
	return nil
}

// applySetup copies the form values that need conversion into cfg and
// checks the result.
func applySetup(cfg *robot.Config, frequency string) error {
	cfg.TrimSpace()
	f, err := strconv.ParseFloat(strings.TrimSpace(frequency), 64)
	if err != nil {
		return fmt.Errorf("frequency: %w", err)
	}
	cfg.Recording.Frequency = f
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func validateHost(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("address is required")
	}
	if strings.ContainsAny(s, " /") {
		return errors.New("not a hostname or IP address")
	}
	if _, _, err := net.SplitHostPort(s); err == nil {
		return errors.New("leave out the port, the interfaces use fixed ports")
	}
	return nil
}

func validateFrequency(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return errors.New("not a number")
	}
	if f <= 0 || f > robot.MaxFrequency {
		return fmt.Errorf("must be between 0 and %d", robot.MaxFrequency)
	}
	return nil
}

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
