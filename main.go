// ABOUTME: Entry point for the engage engine CLI and MCP server
// ABOUTME: Loads config, opens the store and routes to a command
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/harperreed/engage/cli"
	"github.com/harperreed/engage/config"
	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/tui"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "SQLite database path (default: ~/.local/share/engage/engage.db)")
	configPath := flag.String("config", "", "Config file (default: ~/.local/share/engage/config.toml)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("engage version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}
	command := args[0]
	commandArgs := args[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		// init may create the file it was pointed at
		if command != "init" || !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = config.Default()
	}
	if *dbPath != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	cfg.MCP.Version = version

	if err := logging.Init(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON}); err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	defer logging.Sync()

	// goals validate works on a file alone
	if command == "goals" && len(commandArgs) > 0 && commandArgs[0] == "validate" {
		exitOn(cli.GoalsValidateCommand(cfg, commandArgs[1:]))
		return
	}

	store, err := db.Open(context.Background(), cfg.Database.Driver, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = store.Close() }()

	eng, err := engine.New(store, engine.OptionsFromConfig(cfg.Engine))
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	switch command {
	case "init":
		exitOn(cli.InitCommand(cfg, *configPath, commandArgs))

	case "mcp":
		exitOn(cli.MCPCommand(eng, cfg))

	case "tui":
		exitOn(tui.Run(context.Background(), eng))
	case "web":
		exitOn(cli.WebCommand(eng, commandArgs))

	case "goals":
		sub, subArgs := subcommand("goals", commandArgs)
		switch sub {
		case "load":
			exitOn(cli.GoalsLoadCommand(eng, cfg, subArgs))
		case "list":
			exitOn(cli.GoalsListCommand(eng, subArgs))
		case "enable":
			exitOn(cli.GoalsSetEnabledCommand(eng, true, subArgs))
		case "disable":
			exitOn(cli.GoalsSetEnabledCommand(eng, false, subArgs))
		case "reset":
			exitOn(cli.GoalsResetCommand(eng, subArgs))
		default:
			unknown("goals", sub)
		}

	case "activity":
		sub, subArgs := subcommand("activity", commandArgs)
		switch sub {
		case "record":
			exitOn(cli.ActivityRecordCommand(eng, subArgs))
		default:
			unknown("activity", sub)
		}

	case "person":
		sub, subArgs := subcommand("person", commandArgs)
		switch sub {
		case "add":
			exitOn(cli.PersonAddCommand(eng, subArgs))
		case "map":
			exitOn(cli.PersonMapCommand(eng, subArgs))
		case "list":
			exitOn(cli.PersonListCommand(eng, subArgs))
		default:
			unknown("person", sub)
		}

	case "org":
		sub, subArgs := subcommand("org", commandArgs)
		switch sub {
		case "add":
			exitOn(cli.OrgAddCommand(eng, subArgs))
		case "subscription":
			exitOn(cli.OrgSubscriptionCommand(eng, subArgs))
		default:
			unknown("org", sub)
		}

	case "score":
		exitOn(cli.ScoreCommand(eng, commandArgs))
	case "evaluate":
		exitOn(cli.EvaluateCommand(eng, commandArgs))
	case "respond":
		exitOn(cli.RespondCommand(eng, commandArgs))
	case "sweep":
		exitOn(cli.SweepCommand(eng, commandArgs))
	case "relay":
		exitOn(cli.RelayCommand(eng, cfg, commandArgs))

	case "versions":
		sub, subArgs := subcommand("versions", commandArgs)
		switch sub {
		case "list":
			exitOn(cli.VersionsListCommand(eng, subArgs))
		case "stats":
			exitOn(cli.VersionsStatsCommand(eng, subArgs))
		default:
			unknown("versions", sub)
		}

	case "journey":
		sub, subArgs := subcommand("journey", commandArgs)
		switch sub {
		case "set":
			exitOn(cli.JourneySetCommand(eng, subArgs))
		case "history":
			exitOn(cli.JourneyHistoryCommand(eng, subArgs))
		default:
			unknown("journey", sub)
		}

	case "viz":
		sub, subArgs := subcommand("viz", commandArgs)
		switch sub {
		case "goals":
			exitOn(cli.VizGoalsCommand(eng, subArgs))
		case "journey":
			exitOn(cli.VizJourneyCommand(eng, subArgs))
		case "dashboard":
			exitOn(cli.VizDashboardCommand(eng, subArgs))
		default:
			unknown("viz", sub)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func subcommand(command string, args []string) (string, []string) {
	if len(args) == 0 {
		fmt.Printf("Error: %s requires a subcommand\n\n", command)
		printUsage()
		os.Exit(1)
	}
	return args[0], args[1:]
}

func unknown(command, sub string) {
	fmt.Printf("Unknown %s command: %s\n\n", command, sub)
	printUsage()
	os.Exit(1)
}

func exitOn(err error) {
	if err != nil {
		logging.Sync()
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`engage v%s - engagement scoring and outreach decisions

USAGE:
  engage [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <file>        Config file (default: ~/.local/share/engage/config.toml)
  --db-path <path>       SQLite database path, overrides the config
  --log-level <level>    debug, info, warn or error

SETUP:
  engage init [--force]              Write starter config and rules, create the database
  engage goals validate [file]       Check a rule file without loading it
  engage goals load [file]           Load a rule file (default: engine.rules_file)
  engage goals list [--enabled]      List goals
  engage goals enable <name>...      Enable goals
  engage goals disable <name>...     Disable goals
  engage goals reset --person <id> --goal <name>
                                     Make a finished goal selectable again

PEOPLE:
  engage activity record --actor <id> --type <type> [--kind chat|email|account]
                         [--at <time>] [--org <id>] [--external-id <id>] [--url <link>]
  engage person add [--account <id>] [--chat <id>] [--email <addr>] [--name <name>]
  engage person map --person <id> --account <id>
  engage person list [--limit <n>]
  engage org add --name <name> [--subscription <status>] [--persona <p>] [--company-types a,b]
  engage org subscription --org <id> --status <status>

OUTREACH:
  engage score --person <id> | --org <id>
  engage evaluate --person <id> [--preview] | --all
  engage respond --decision <id> --signal <kind> [--value <v>] [--elapsed <hours>] [--rating 1-5]
  engage sweep [--every <duration>]  Resolve decisions past the response timeout
  engage relay [--once] [--create-topics]
                                     Publish queued dispatch and escalation messages

ANALYSIS:
  engage versions list [--limit <n>]
  engage versions stats <version-id>
  engage journey set --org <id> --stage <stage> [--reason <text>]
  engage journey history --org <id>
  engage viz goals [name] [--output <file>]
  engage viz journey <org-id> [--output <file>]
  engage viz dashboard

MCP SERVER:
  engage mcp                         Serve engage tools over stdio

CONSOLE:
  engage tui                         Browse people, open decisions and versions
  engage web [--port 8080]           Read-only dashboard on localhost

EXAMPLES:
  # First run
  engage init && engage goals load

  # Record a chat message and decide what to say
  engage activity record --actor U024BE7LH --type chat_message --name "Ada Lovelace"
  engage evaluate --all

  # Apply a classified reply
  engage respond --decision 01J... --signal sentiment --value positive --rating 5

`, version)
}
