package azfolio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"

	"github.com/ezquant/azfolio/azfolio/agent"
	"github.com/ezquant/azfolio/azfolio/backtest"
	"github.com/ezquant/azfolio/azfolio/dataset"
	"github.com/ezquant/azfolio/azfolio/download"
	"github.com/ezquant/azfolio/azfolio/environment"
	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/notification"
	"github.com/ezquant/azfolio/azfolio/plus/models"
	"github.com/ezquant/azfolio/azfolio/report"
	"github.com/ezquant/azfolio/azfolio/storage"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

// riskFree is the per period risk free return used for every Sharpe ratio.
const riskFree = 0

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04",
	})
}

// Trainer trains one agent on a price tensor and backtests it against the baselines.
type Trainer struct {
	settings  models.Config
	data      *model.PriceTensor
	benchmark []float64

	storage  *storage.Runs
	history  *backtest.HistoryFile
	notifier notification.Notifier
	progress bool
	now      func() time.Time

	result *Result
}

type Option func(*Trainer)

// Result is the outcome of a training session.
type Result struct {
	// Key is the history key the run was stored under.
	Key      string
	Name     string
	Run      backtest.Run
	Steps    model.Steps
	Episodes []agent.EpisodeResult
	Duration time.Duration

	// Times are the timestamps of the test set, aligned with every series of Performance.
	Times       []time.Time
	Performance model.PerformanceLists
	BTC         []float64

	// BTCRangeRatio is (last - first) / std of the BTC values, reported next to its Sharpe ratio.
	BTCRangeRatio float64
	Strategies    []report.StrategyResult
}

func NewTrainer(settings models.Config, data *model.PriceTensor, options ...Option) (*Trainer, error) {
	if data == nil || data.Periods() == 0 {
		return nil, dataset.ErrNotEnoughPeriods
	}

	trainer := &Trainer{
		settings: settings.WithDefaults(),
		data:     data,
		now:      time.Now,
	}
	for _, option := range options {
		option(trainer)
	}

	if trainer.benchmark != nil && len(trainer.benchmark) != data.Periods() {
		return nil, fmt.Errorf("benchmark has %d periods, data has %d", len(trainer.benchmark), data.Periods())
	}

	if trainer.notifier == nil && trainer.settings.Telegram.Enabled {
		telegram, err := notification.NewTelegram(trainer.settings.Telegram)
		if err != nil {
			return nil, err
		}
		trainer.notifier = telegram
	}

	return trainer, nil
}

// WithStorage persists every run in the given store
func WithStorage(storage *storage.Runs) Option {
	return func(t *Trainer) {
		t.storage = storage
	}
}

// WithHistory appends every run to the JSON training history
func WithHistory(history *backtest.HistoryFile) Option {
	return func(t *Trainer) {
		t.history = history
	}
}

// WithNotifier sends a message when training is finished
func WithNotifier(notifier notification.Notifier) Option {
	return func(t *Trainer) {
		t.notifier = notifier
	}
}

// WithLogLevel sets the log level. eg: log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel, log.FatalLevel
func WithLogLevel(level log.Level) Option {
	return func(t *Trainer) {
		log.SetLevel(level)
	}
}

// WithProgress shows a progress bar of the training batches
func WithProgress(enabled bool) Option {
	return func(t *Trainer) {
		t.progress = enabled
	}
}

// WithBenchmark sets the BTC price series aligned with the data, used for the "BTC only" strategy
func WithBenchmark(prices []float64) Option {
	return func(t *Trainer) {
		t.benchmark = prices
	}
}

// LoadData reads the price tensor of the configured pairs and, when available, the BTC benchmark.
func LoadData(config models.Config) (*model.PriceTensor, []float64, error) {
	opts := dataset.Options{
		Dir:       config.DataDir,
		Pairs:     config.Pairs,
		NumAssets: config.NumAssets,
		StartDate: config.StartDate,
		EndDate:   config.EndDate,
		Period:    config.TradingPeriodLength,
	}

	data, err := dataset.Load(opts)
	if err != nil {
		return nil, nil, err
	}

	benchmark, err := dataset.Benchmark(opts, data.Times)
	if err != nil {
		log.WithError(err).Warn("BTC benchmark unavailable")
		return data, nil, nil
	}
	return data, benchmark, nil
}

func (t *Trainer) environment() (*environment.TradeEnv, error) {
	return environment.New(t.data, environment.Config{
		WindowLength: t.settings.WindowLength,
		InitialValue: t.settings.PortfolioValue,
		TradingCost:  t.settings.TradingCost,
		InterestRate: t.settings.InterestRate,
	})
}

func (t *Trainer) agentConfig() agent.Config {
	seed := t.settings.Seed
	if seed == 0 {
		seed = t.now().UnixNano()
	}
	return agent.Config{
		HiddenSize:   t.settings.HiddenSize,
		Episodes:     t.settings.Episodes,
		Batches:      t.settings.Batches,
		BatchSize:    t.settings.BatchSize,
		LearningRate: t.settings.LearningRate,
		Epsilon:      t.settings.Epsilon,
		Penalty:      t.settings.MaxWeightPenalty,
		Seed:         seed,
	}
}

// Run trains the agent, backtests it on the test set and records the run.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	started := t.now()
	name := report.OutputName(t.settings.Session, t.settings.TestMode, started)

	steps, err := dataset.SplitSteps(t.data.Periods(), t.settings.RatioTrain, t.settings.RatioValidation)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"session":    name,
		"assets":     t.data.Assets,
		"train":      steps.Train,
		"validation": steps.Validation,
		"test":       steps.Test,
	}).Info("[SETUP] Starting training")

	env, err := t.environment()
	if err != nil {
		return nil, err
	}

	policy, err := agent.New(env, t.agentConfig())
	if err != nil {
		return nil, err
	}

	bar := progressbar.DefaultSilent(int64(t.settings.Episodes * t.settings.Batches))
	if t.progress {
		bar = progressbar.Default(int64(t.settings.Episodes*t.settings.Batches), "training")
	}
	policy.OnBatch = func(episode, batch int, loss float64) {
		if err := bar.Add(1); err != nil {
			log.Warnf("update progressbar fail: %v", err)
		}
	}

	episodes, err := policy.Train(ctx, env, steps)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	_ = bar.Finish()

	result, err := t.test(policy, steps)
	if err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}
	result.Name = name
	result.Episodes = episodes
	result.Duration = t.now().Sub(started)

	if err := t.record(result); err != nil {
		return nil, err
	}

	if t.settings.PlotResults {
		if err := t.plot(result); err != nil {
			return nil, err
		}
	}

	if t.notifier != nil {
		t.notifier.Notify(fmt.Sprintf("*%s* finished in %s\nAgent: %.2f (Sharpe %.3f)\nEqual weighted: %.2f",
			name, result.Duration.Round(time.Second),
			result.Run.Dynamic.PortfolioValue, result.Run.Dynamic.SharpeRatio,
			result.Run.EqualWeight.PortfolioValue))
	}

	t.result = result
	return result, nil
}

// test rolls out every strategy over the test set.
func (t *Trainer) test(policy *agent.Agent, steps model.Steps) (*Result, error) {
	start := max(steps.TestStart(), t.settings.WindowLength-1)
	if start >= t.data.Periods()-1 {
		return nil, fmt.Errorf("%w: test set starts at period %d of %d",
			dataset.ErrNotEnoughPeriods, start, t.data.Periods())
	}

	n := t.data.NumAssets()
	rollout := func(weights []float64, strategy environment.Policy) ([]float64, [][]float64, error) {
		env, err := t.environment()
		if err != nil {
			return nil, nil, err
		}
		episode, err := environment.Rollout(env, start, 0, weights, strategy)
		return episode.Values, episode.Weights, err
	}

	testEnv, err := t.environment()
	if err != nil {
		return nil, err
	}
	initial := policy.InitialWeights(testEnv, start)

	perf := model.PerformanceLists{InitialWeights: initial}
	if perf.Policy, perf.Weights, err = rollout(initial, policy.Policy()); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if perf.Static, _, err = rollout(initial, environment.Hold()); err != nil {
		return nil, fmt.Errorf("static agent: %w", err)
	}
	equal := environment.EqualWeights(n)
	if perf.Equal, _, err = rollout(equal, environment.Constant(equal)); err != nil {
		return nil, fmt.Errorf("equal weighted: %w", err)
	}
	cash := environment.CashOnly(n)
	if perf.Cash, _, err = rollout(cash, environment.Constant(cash)); err != nil {
		return nil, fmt.Errorf("only cash: %w", err)
	}
	for asset := 0; asset < n; asset++ {
		full := environment.FullOn(n, asset)
		values, _, err := rollout(full, environment.Constant(full))
		if err != nil {
			return nil, fmt.Errorf("only %s: %w", t.data.Assets[asset], err)
		}
		perf.SingleAsset = append(perf.SingleAsset, values)
	}

	result := &Result{
		Steps:       steps,
		Times:       t.data.Times[start:],
		Performance: perf,
	}

	result.Strategies = []report.StrategyResult{
		{Name: "Agent", Metrics: backtest.Evaluate(perf.Policy, riskFree)},
		{Name: "Static agent", Metrics: backtest.Evaluate(perf.Static, riskFree)},
		{Name: "Equally weighted", Metrics: backtest.Evaluate(perf.Equal, riskFree)},
		{Name: "Only cash", Metrics: backtest.Evaluate(perf.Cash, riskFree)},
	}
	for i, values := range perf.SingleAsset {
		result.Strategies = append(result.Strategies, report.StrategyResult{
			Name:    "Only " + t.data.Assets[i],
			Metrics: backtest.Evaluate(values, riskFree),
		})
	}
	if t.benchmark != nil {
		result.BTC = backtest.BuyAndHold(backtest.TestPeriod(t.benchmark, start), t.settings.PortfolioValue)
		result.BTCRangeRatio = backtest.RangeRatio(result.BTC)
		result.Strategies = append(result.Strategies, report.StrategyResult{
			Name:    "Long Bitcoin",
			Metrics: backtest.Evaluate(result.BTC, riskFree),
		})
	}

	result.Run = backtest.Run{
		AssetList:           t.data.Assets,
		InitialWeights:      initial,
		Dynamic:             result.Strategies[0].Metrics,
		Static:              result.Strategies[1].Metrics,
		EqualWeight:         result.Strategies[2].Metrics,
		TestStart:           t.data.Times[start].Format(download.DateLayout),
		TestEnd:             t.data.Times[len(t.data.Times)-1].Format(download.DateLayout),
		TradingPeriodLength: t.settings.TradingPeriodLength,
	}
	return result, nil
}

func (t *Trainer) record(result *Result) error {
	result.Key = t.now().Format(backtest.TimestampLayout)
	if t.history != nil {
		key, err := t.history.Append(result.Run)
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		result.Key = key
	}

	if t.storage != nil {
		if err := t.storage.Save(result.Name, result.Key, result.Run); err != nil {
			return fmt.Errorf("store run: %w", err)
		}
	}
	return nil
}

func (t *Trainer) plot(result *Result) error {
	if err := os.MkdirAll(t.settings.GraphDir, 0755); err != nil {
		return err
	}

	_, err := report.TrainResults(t.settings.GraphDir, report.TrainResultsInput{
		Name:    result.Name,
		Assets:  t.data.Assets,
		Times:   result.Times,
		Agent:   result.Performance.Policy,
		Equal:   result.Performance.Equal,
		BTC:     result.BTC,
		Weights: result.Performance.Weights,
	})
	return err
}

// Parameters describes the settings the last run was trained with.
func (t *Trainer) Parameters() report.TrainParameters {
	p := report.TrainParameters{
		StartDate:     t.settings.StartDate,
		EndDate:       t.settings.EndDate,
		Batches:       t.settings.Batches,
		Episodes:      t.settings.Episodes,
		BatchSize:     t.settings.BatchSize,
		TradingPeriod: t.settings.TradingPeriodLength,
		WindowLength:  t.settings.WindowLength,
		HiddenSize:    t.settings.HiddenSize,
		Epsilon:       t.settings.Epsilon,
		LearningRate:  t.settings.LearningRate,
		Penalty:       t.settings.MaxWeightPenalty,
	}
	if t.result != nil {
		p.Duration = t.result.Duration
		if key, err := time.Parse(backtest.TimestampLayout, t.result.Key); err == nil {
			p.Timestamp = key
		}
	}
	return p
}

// Summary writes the test set performance of every strategy of the last run.
func (t *Trainer) Summary(w io.Writer) error {
	if t.result == nil {
		return errors.New("no training run to summarise")
	}

	initial := t.settings.PortfolioValue
	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Strategy", "Final value", "Return", "Sharpe", "MDD"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)

	for _, s := range t.result.Strategies {
		table.Append([]string{
			s.Name,
			fmt.Sprintf("%.2f", s.Metrics.PortfolioValue),
			fmt.Sprintf("%.1f %%", (s.Metrics.PortfolioValue/initial-1)*100),
			fmt.Sprintf("%.3f", s.Metrics.SharpeRatio),
			fmt.Sprintf("%.1f %%", s.Metrics.MDD*100),
		})
	}

	best := lo.MaxBy(t.result.Strategies, func(a, b report.StrategyResult) bool {
		return a.Metrics.SharpeRatio > b.Metrics.SharpeRatio
	})
	table.SetFooter([]string{"BEST SHARPE", best.Name, "", fmt.Sprintf("%.3f", best.Metrics.SharpeRatio), ""})
	table.Render()

	if _, err := fmt.Fprintf(w, "%s\nSTART PORTFOLIO = %.2f %s\n", buffer.String(), initial, model.CashName); err != nil {
		return err
	}
	if t.result.BTC != nil {
		if _, err := fmt.Fprintf(w, "LONG BITCOIN (LAST - FIRST) / STD = %.3f\n", t.result.BTCRangeRatio); err != nil {
			return err
		}
	}
	return nil
}
