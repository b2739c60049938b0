package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/urteleop/pkg/ur"
)

type InfoCommand struct {
	Config  string        `long:"config" description:"Session configuration file (.json, .yaml; default urteleop.json)"`
	Host    string        `long:"host" description:"Controller address, overrides the configuration"`
	Timeout time.Duration `long:"timeout" default:"5s" description:"Connect and query timeout"`
}

type infoQuery struct {
	name  string
	query func(*ur.Dashboard, context.Context) (string, error)
}

var infoQueries = []infoQuery{
	{"PolyScope", (*ur.Dashboard).PolyscopeVersion},
	{"Robot mode", (*ur.Dashboard).RobotMode},
	{"Safety status", (*ur.Dashboard).SafetyStatus},
	{"Program state", (*ur.Dashboard).ProgramState},
	{"Loaded program", (*ur.Dashboard).LoadedProgram},
}

func (c *InfoCommand) Execute(args []string) error {
	cfg, _, err := loadSessionConfig(c.Config, c.Host)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	addr := ur.DefaultAddrs(cfg.Host).Dashboard
	dash, err := ur.DialDashboard(ctx, addr, nil)
	if err != nil {
		return err
	}
	defer dash.Close()

	rows := [][]string{{"Dashboard", addr}, {"Banner", dash.Banner()}}
	failed := make(map[int]bool)
	for _, q := range infoQueries {
		value, err := q.query(dash, ctx)
		if err != nil {
			failed[len(rows)] = true
			value = err.Error()
		} else if value == "" {
			value = "(none)"
		}
		rows = append(rows, []string{q.name, value})
	}

	fmt.Println(renderInfo(rows, failed))
	return nil
}

func renderInfo(rows [][]string, failed map[int]bool) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableErrorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Property", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return tableNameStyle
			case failed[row]:
				return tableErrorStyle
			default:
				return tableCellStyle
			}
		})
	return t.Render()
}
