package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/bidworks/auction-engine/configs"
	"github.com/bidworks/auction-engine/internal/database"
	"github.com/bidworks/auction-engine/internal/engine"
	"github.com/bidworks/auction-engine/internal/handlers/api"
	"github.com/bidworks/auction-engine/internal/handlers/websocket"
	"github.com/bidworks/auction-engine/internal/notify"
	"github.com/bidworks/auction-engine/pkg/utils"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	db database.Service
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Every(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Define the model for the Bubble Tea application
type model struct {
	table     table.Model
	viewport  viewport.Model
	logBuffer *bytes.Buffer
	logs      []string
	showTable bool
	quitting  bool
}

func (m model) Init() tea.Cmd {
	return tick()
}

func auctionRows() []table.Row {
	auctions, err := db.OpenAuctions(context.Background())
	if err != nil {
		log.Error("Error getting auctions: ", err)
		return nil
	}

	rows := make([]table.Row, 0, len(auctions))
	for _, auction := range auctions {
		leader := "-"
		if auction.LeadingBidderID != nil {
			leader = *auction.LeadingBidderID
		}

		timeLeft := time.Until(auction.CloseAt)
		timeLeftStr := timeLeft.Round(time.Second).String()
		if timeLeft < 0 {
			timeLeftStr = "Ended"
		}

		rows = append(rows, table.Row{
			auction.ID,
			auction.Title,
			leader,
			utils.FormatPrice(auction.CurrentPrice),
			timeLeftStr,
		})
	}
	return rows
}

func newTable() model {
	columns := []table.Column{
		{Title: "AUCTION ID", Width: 20},
		{Title: "TITLE", Width: 24},
		{Title: "LEADER", Width: 20},
		{Title: "PRICE", Width: 14},
		{Title: "TIME LEFT", Width: 14},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(auctionRows()),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(100, 15)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return model{table: t, showTable: true, viewport: vp}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)
	switch msg := msg.(type) {
	case tickMsg:
		if m.showTable {
			m.table.SetRows(auctionRows())
		} else {
			// refresh logs to get new logs
			m.logs = strings.Split(m.logBuffer.String(), "\n")
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "up":
			if !m.showTable {
				m.viewport.LineUp(1)
			}
		case "down":
			if !m.showTable {
				m.viewport.LineDown(1)
			}
		case "tab":
			m.showTable = !m.showTable
			if !m.showTable {
				m.logs = strings.Split(m.logBuffer.String(), "\n")
			}
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.showTable {
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// Render the view based on the current state of the model
func (m model) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	if m.showTable {
		return baseStyle.Render(m.table.View()) + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
	}

	styledLogs := make([]string, len(m.logs))
	copy(styledLogs, m.logs)
	styledLogs = utils.ColorizeLogs(styledLogs)

	// only show last 15 lines of logs
	if len(styledLogs) > 15 {
		styledLogs = styledLogs[len(styledLogs)-15:]
	}

	m.viewport.SetContent(strings.Join(styledLogs, "\n"))
	return m.viewport.View() + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
}

func main() {
	// Load configurations
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080" // Default port if not specified
	}

	// Setup logger
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "debug"
	}
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level: ", err)
	}
	log.SetLevel(logLevel)

	if cfg.Server.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Redirect logs to buffer for the monitor view
	logBuffer := new(bytes.Buffer)
	log.SetOutput(logBuffer)

	// Initialize database service
	db = database.New(cfg)
	defer db.Close()

	// Outcome notifications fan out on a worker pool after commit; the
	// websocket handler is attached below, once it exists.
	var wsHandler *websocket.AuctionHandler
	dispatcher, err := notify.NewDispatcher(cfg.Auction.NotifyWorkers, func(message []byte) {
		if wsHandler != nil {
			wsHandler.Broadcast(message)
		}
	})
	if err != nil {
		log.Fatal("Error creating notification dispatcher: ", err)
	}
	defer dispatcher.Stop()

	// The database service doubles as the rating and order collaborators.
	eng := engine.New(db, db, db, dispatcher, cfg, clock.NewClock())
	wsHandler = websocket.NewAuctionHandler(eng, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic close resolver
	eng.StartSweeper(ctx, cfg.SweepInterval())

	// Setup routes
	router := api.NewHandler(eng, db).Router()
	router.GET("/ws/auction", gin.WrapF(wsHandler.HandleAuctionWebSocket))

	// Start server in a goroutine
	log.Infof("Server started on port %s", port)
	go func() {
		if err := http.ListenAndServe(":"+port, router); err != nil {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Start Bubble Tea program
	m := newTable()
	m.logBuffer = logBuffer
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running Bubble Tea program: %v", err)
	}
}
