package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ezquant/azfolio/azfolio/dataset"
	"github.com/ezquant/azfolio/azfolio/notification"
)

// DefaultPairs 默认交易对，均以 BTC 计价
var DefaultPairs = []string{
	"BTC_ETH", "BTC_XRP", "BTC_LTC", "BTC_XMR", "BTC_DASH",
	"BTC_STR", "BTC_DOGE", "BTC_XEM", "BTC_BTS", "BTC_DGB", "BTC_FCT",
}

type Config struct {
	Session  string   `yaml:"session"`
	Sessions []string `yaml:"sessions,omitempty"`

	Pairs               []string `yaml:"pairs,flow"`
	NumAssets           int      `yaml:"no_of_assets"`
	StartDate           string   `yaml:"start_date"`
	EndDate             string   `yaml:"end_date"`
	TradingPeriodLength string   `yaml:"trading_period_length"`
	Source              string   `yaml:"source"`

	WindowLength int `yaml:"window_length"`
	Episodes     int `yaml:"no_of_episodes"`
	Batches      int `yaml:"no_of_batches"`
	BatchSize    int `yaml:"batch_size"`

	PortfolioValue  float64 `yaml:"portfolio_value"`
	TradingCost     float64 `yaml:"trading_cost"`
	InterestRate    float64 `yaml:"interest_rate"`
	RatioTrain      float64 `yaml:"ratio_train"`
	RatioValidation float64 `yaml:"ratio_validation"`

	LearningRate     float64 `yaml:"learning_rate"`
	HiddenSize       int     `yaml:"hidden_size"`
	Epsilon          float64 `yaml:"epsilon_greedy_threshold"`
	MaxWeightPenalty float64 `yaml:"max_weight_penalty"`
	// Seed 为 0 时每次训练使用不同的随机种子
	Seed int64 `yaml:"seed"`

	DataDir      string `yaml:"data_dir"`
	HistoryDir   string `yaml:"history_dir"`
	HistogramDir string `yaml:"histogram_dir"`
	GraphDir     string `yaml:"graph_dir"`
	CacheDir     string `yaml:"cache_dir"`
	Database     string `yaml:"database"`

	PlotResults bool `yaml:"plot_results"`
	Verbose     bool `yaml:"verbose"`
	TestMode    bool `yaml:"test_mode"`

	Simulations int `yaml:"simulations"`
	Workers     int `yaml:"workers"`

	Parameters []Parameter                   `yaml:"parameters,omitempty"`
	Telegram   notification.TelegramSettings `yaml:"telegram"`
}

// Default 返回与命令行默认参数一致的配置
func Default() Config {
	return Config{
		Pairs:               DefaultPairs,
		NumAssets:           5,
		StartDate:           "20170601",
		EndDate:             "20171231",
		TradingPeriodLength: "1d",
		Source:              "poloniex",
		WindowLength:        40,
		Episodes:            2,
		Batches:             10,
		BatchSize:           50,
		PortfolioValue:      10000,
		TradingCost:         0.0025,
		InterestRate:        0.02 / 250,
		RatioTrain:          0.6,
		RatioValidation:     0.2,
		LearningRate:        0.01,
		HiddenSize:          32,
		Epsilon:             0.2,
		MaxWeightPenalty:    0.1,
		DataDir:             "crypto_data",
		HistoryDir:          "train_jsons",
		HistogramDir:        "train_histograms",
		GraphDir:            "train_graphs",
		CacheDir:            "user_data/cache",
		Database:            "user_data/azfolio.db",
		Simulations:         1,
		Workers:             1,
	}
}

// QuickTest 快速测试运行
func QuickTest() Config {
	c := Default()
	c.Verbose = true
	c.NumAssets = 5
	c.PlotResults = false
	c.Episodes = 1
	c.Batches = 1
	c.WindowLength = 130
	c.BatchSize = 1
	c.PortfolioValue = 10000
	c.StartDate = "20190101"
	c.EndDate = "20190301"
	c.TradingPeriodLength = "4h"
	return c
}

// Test 完整测试运行，会输出图表
func Test() Config {
	c := QuickTest()
	c.PlotResults = true
	c.TestMode = true
	c.WindowLength = 77
	c.TradingPeriodLength = "2h"
	return c
}

// WithDefaults 用默认值填充未设置的字段。
// 交易成本、利率、探索阈值、权重惩罚与验证集比例为 0 时是合法取值，不会被覆盖
func (c Config) WithDefaults() Config {
	d := Default()
	setString := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setFloat := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}

	if len(c.Pairs) == 0 {
		c.Pairs = d.Pairs
	}
	setInt(&c.NumAssets, d.NumAssets)
	setString(&c.StartDate, d.StartDate)
	setString(&c.EndDate, d.EndDate)
	setString(&c.TradingPeriodLength, d.TradingPeriodLength)
	setString(&c.Source, d.Source)
	setInt(&c.WindowLength, d.WindowLength)
	setInt(&c.Episodes, d.Episodes)
	setInt(&c.Batches, d.Batches)
	setInt(&c.BatchSize, d.BatchSize)
	setFloat(&c.PortfolioValue, d.PortfolioValue)
	setFloat(&c.RatioTrain, d.RatioTrain)
	setFloat(&c.LearningRate, d.LearningRate)
	setInt(&c.HiddenSize, d.HiddenSize)
	setString(&c.DataDir, d.DataDir)
	setString(&c.HistoryDir, d.HistoryDir)
	setString(&c.HistogramDir, d.HistogramDir)
	setString(&c.GraphDir, d.GraphDir)
	setString(&c.CacheDir, d.CacheDir)
	setString(&c.Database, d.Database)
	setInt(&c.Simulations, d.Simulations)
	setInt(&c.Workers, d.Workers)
	return c
}

// Validate 检查配置是否可以用于训练
func (c Config) Validate() error {
	var errs []error
	if _, err := dataset.ParsePeriod(c.TradingPeriodLength); err != nil {
		errs = append(errs, err)
	}
	if c.NumAssets < 1 {
		errs = append(errs, fmt.Errorf("no_of_assets must be positive, got %d", c.NumAssets))
	}
	if c.NumAssets > len(c.Pairs) {
		errs = append(errs, fmt.Errorf("no_of_assets %d exceeds the %d configured pairs", c.NumAssets, len(c.Pairs)))
	}
	if c.WindowLength < 1 || c.Episodes < 1 || c.Batches < 1 || c.BatchSize < 1 {
		errs = append(errs, errors.New("window length, episodes, batches and batch size must be positive"))
	}
	if c.PortfolioValue <= 0 {
		errs = append(errs, fmt.Errorf("portfolio_value must be positive, got %f", c.PortfolioValue))
	}
	if c.RatioTrain <= 0 || c.RatioValidation < 0 || c.RatioTrain+c.RatioValidation >= 1 {
		errs = append(errs, fmt.Errorf("invalid train/validation ratios %.2f/%.2f", c.RatioTrain, c.RatioValidation))
	}
	if c.Source != "poloniex" && c.Source != "binance" {
		errs = append(errs, fmt.Errorf("unknown data source %q", c.Source))
	}
	if c.Simulations < 1 || c.Workers < 1 {
		errs = append(errs, errors.New("simulations and workers must be positive"))
	}
	return errors.Join(errs...)
}

// Load 读取 YAML 配置文件，缺省字段使用默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// 文件中未出现的字段保留默认值
	defaults := Default()
	config := &defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	*config = config.WithDefaults()
	return config, nil
}

// Save 保存配置到指定路径
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
