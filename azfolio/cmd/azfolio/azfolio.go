package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/ezquant/azfolio/azfolio"
	"github.com/ezquant/azfolio/azfolio/download"
	"github.com/ezquant/azfolio/azfolio/exchange"
	"github.com/ezquant/azfolio/azfolio/plus/localkv"
	"github.com/ezquant/azfolio/azfolio/plus/models"
	"github.com/ezquant/azfolio/azfolio/tools/log"
	"github.com/ezquant/azfolio/examples/backtesting"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "eg. ./user_data/config.yml",
	}
}

func main() {
	app := &cli.App{
		Name:     "azfolio",
		HelpName: "azfolio",
		Usage:    "Deep reinforcement learning portfolio management for crypto assets",
		Commands: []*cli.Command{
			trainCommand(),
			histogramCommand(),
			downloadCommand(),
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:     "train",
		HelpName: "train",
		Usage:    "Train the agent and backtest it against the baselines",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "session name, eg. Bear_year__2018"},
			&cli.BoolFlag{Name: "plot_results", Aliases: []string{"pr"}, Usage: "Plot aftermath analysis"},
			&cli.IntFlag{Name: "no_of_assets", Aliases: []string{"na"}, Usage: "Choose how many assets are trained", Value: 5},
			&cli.IntFlag{Name: "no_of_batches", Aliases: []string{"nb"}, Usage: "Choose how many batches are trained", Value: 10},
			&cli.IntFlag{Name: "batch_size", Aliases: []string{"bs"}, Usage: "Select batch size", Value: 50},
			&cli.IntFlag{Name: "no_of_episodes", Aliases: []string{"ne"}, Usage: "Choose how many episodes are trained", Value: 2},
			&cli.IntFlag{Name: "window_length", Aliases: []string{"wl"}, Usage: "Choose window length", Value: 40},
			&cli.Float64Flag{Name: "portfolio_initial_value", Aliases: []string{"pv"}, Usage: "Initial cash invested in portfolio", Value: 10000},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Show training progress"},
			&cli.BoolFlag{Name: "test_mode", Aliases: []string{"t"}, Usage: "Proper testrun"},
			&cli.BoolFlag{Name: "quick_test_mode", Aliases: []string{"qt"}, Usage: "Quick testrun"},
			&cli.StringFlag{Name: "start_date", Aliases: []string{"sd"}, Usage: "date in format YYYYMMDD", Value: "20170601"},
			&cli.StringFlag{Name: "end_date", Aliases: []string{"ed"}, Usage: "date in format YYYYMMDD", Value: "20171231"},
			&cli.StringFlag{Name: "trading_period_length", Aliases: []string{"pl"}, Usage: "Trade period length (5min, 15min, 30min, 2h, 4h, 1d)", Value: "1d"},
			&cli.IntFlag{Name: "simulations", Aliases: []string{"n"}, Usage: "Number of simulations of the session", Value: 1},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Simulations run in parallel", Value: 1},
			&cli.StringFlag{Name: "log-level", Usage: "eg. debug, info, warn", Value: "info"},
		},
		Action: func(c *cli.Context) error {
			config, err := trainConfig(c)
			if err != nil {
				return err
			}

			level, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}

			return backtesting.Train(c.Context, config, os.Stdout, azfolio.WithLogLevel(level))
		},
	}
}

// readConfig loads the config file when given, the defaults otherwise.
func readConfig(c *cli.Context) (models.Config, error) {
	if !c.IsSet("config") {
		return models.Default(), nil
	}
	config, err := models.Load(c.String("config"))
	if err != nil {
		return models.Config{}, fmt.Errorf("cannot read config file: %w", err)
	}
	return *config, nil
}

// trainConfig resolves the training config: a preset or the config file, then explicit flags.
func trainConfig(c *cli.Context) (models.Config, error) {
	var config models.Config
	switch {
	case c.Bool("quick_test_mode"):
		log.Info("Starting rapid test run...")
		return models.QuickTest(), nil
	case c.Bool("test_mode"):
		log.Info("Starting test run...")
		return models.Test(), nil
	case c.IsSet("config"):
		loaded, err := models.Load(c.String("config"))
		if err != nil {
			return config, fmt.Errorf("cannot read config file: %w", err)
		}
		config = *loaded
	default:
		config = models.Default()
	}

	if session := c.String("session"); session != "" {
		config.Session = session
	}
	setInt := func(name string, v *int) {
		if c.IsSet(name) || !c.IsSet("config") {
			*v = c.Int(name)
		}
	}
	setString := func(name string, v *string) {
		if c.IsSet(name) || !c.IsSet("config") {
			*v = c.String(name)
		}
	}

	setInt("no_of_assets", &config.NumAssets)
	setInt("no_of_batches", &config.Batches)
	setInt("batch_size", &config.BatchSize)
	setInt("no_of_episodes", &config.Episodes)
	setInt("window_length", &config.WindowLength)
	setInt("simulations", &config.Simulations)
	setInt("workers", &config.Workers)
	setString("start_date", &config.StartDate)
	setString("end_date", &config.EndDate)
	setString("trading_period_length", &config.TradingPeriodLength)
	if c.IsSet("portfolio_initial_value") || !c.IsSet("config") {
		config.PortfolioValue = c.Float64("portfolio_initial_value")
	}
	if c.Bool("plot_results") {
		config.PlotResults = true
	}
	if c.Bool("verbose") {
		config.Verbose = true
	}
	return config, nil
}

func histogramCommand() *cli.Command {
	return &cli.Command{
		Name:      "histogram",
		HelpName:  "histogram",
		Usage:     "Plot the simulation statistics of training sessions",
		ArgsUsage: "[session...]",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Plot every session listed in the config"},
		},
		Action: func(c *cli.Context) error {
			config, err := readConfig(c)
			if err != nil {
				return err
			}

			sessions := c.Args().Slice()
			if c.Bool("all") {
				sessions = append(sessions, config.Sessions...)
			}
			return backtesting.Histograms(c.Context, config, sessions, os.Stdout)
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:     "download",
		HelpName: "download",
		Usage:    "Download historical data",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringSliceFlag{Name: "pair", Aliases: []string{"p"}, Usage: "eg. BTC_ETH, defaults to the configured pairs"},
			&cli.StringFlag{Name: "period", Aliases: []string{"t"}, Usage: "eg. 4h"},
			&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Usage: "eg. 20170601"},
			&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "eg. 20171231"},
			&cli.StringFlag{Name: "source", Usage: "binance or poloniex"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "data directory"},
			&cli.StringFlag{Name: "cache", Usage: "cache directory of downloaded chunks"},
		},
		Action: func(c *cli.Context) error {
			config, err := downloadConfig(c)
			if err != nil {
				return err
			}

			var feeder exchange.Feeder
			switch config.Source {
			case "binance":
				feeder = exchange.NewBinance()
			case "poloniex":
				cache, err := localkv.NewLocalKV(&config.CacheDir)
				if err != nil {
					return err
				}
				defer cache.Close()
				feeder = exchange.NewPoloniex(exchange.WithPoloniexCache(cache))
			default:
				return fmt.Errorf("unknown source %q", config.Source)
			}

			paths, err := download.NewDownloader(feeder).DownloadAll(c.Context, config.Pairs,
				config.TradingPeriodLength, config.StartDate, config.EndDate, config.DataDir)
			for _, path := range paths {
				log.Infof("Saved %s", path)
			}
			return err
		},
	}
}

// downloadConfig takes the data settings from the config, overridden by explicit flags.
func downloadConfig(c *cli.Context) (models.Config, error) {
	config, err := readConfig(c)
	if err != nil {
		return config, err
	}

	if pairs := c.StringSlice("pair"); len(pairs) > 0 {
		config.Pairs = pairs
	}
	overrides := map[string]*string{
		"period": &config.TradingPeriodLength,
		"start":  &config.StartDate,
		"end":    &config.EndDate,
		"source": &config.Source,
		"output": &config.DataDir,
		"cache":  &config.CacheDir,
	}
	for name, v := range overrides {
		if c.IsSet(name) {
			*v = c.String(name)
		}
	}
	return config, nil
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		HelpName:  "history",
		Usage:     "List stored sessions, or the runs of a session",
		ArgsUsage: "[session]",
		Flags:     []cli.Flag{configFlag()},
		Action: func(c *cli.Context) error {
			config, err := readConfig(c)
			if err != nil {
				return err
			}

			runs, err := backtesting.OpenStorage(config)
			if err != nil {
				return err
			}
			defer runs.Close()

			table := tablewriter.NewWriter(os.Stdout)
			if session := c.Args().First(); session != "" {
				history, err := runs.List(session)
				if err != nil {
					return err
				}
				table.SetHeader([]string{"Run", "Assets", "Agent fAPV", "Agent Sharpe", "Static fAPV", "Equal fAPV"})
				for _, key := range history.Keys() {
					run := history[key]
					table.Append([]string{
						key,
						strconv.Itoa(len(run.AssetList)),
						fmt.Sprintf("%.2f", run.Dynamic.PortfolioValue),
						fmt.Sprintf("%.3f", run.Dynamic.SharpeRatio),
						fmt.Sprintf("%.2f", run.Static.PortfolioValue),
						fmt.Sprintf("%.2f", run.EqualWeight.PortfolioValue),
					})
				}
				table.Render()
				return nil
			}

			sessions, err := runs.Sessions()
			if err != nil {
				return err
			}
			table.SetHeader([]string{"Session", "Runs"})
			for _, session := range sessions {
				count, err := runs.Count(session)
				if err != nil {
					return err
				}
				table.Append([]string{session, strconv.FormatInt(count, 10)})
			}
			table.Render()
			return nil
		},
	}
}
