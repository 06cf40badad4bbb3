package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ezquant/azfolio/azfolio"
	"github.com/ezquant/azfolio/azfolio/backtest"
	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/plus/models"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

var ErrNoResults = errors.New("simulation: no successful run")

// Outcome 单次模拟的结果
type Outcome struct {
	Simulation int
	Parameters models.Assignment
	Key        string
	Dynamic    backtest.Metrics
	Static     backtest.Metrics
	Equal      backtest.Metrics
}

type job struct {
	simulation int
	parameters models.Assignment
	config     models.Config
}

// Simulator 在参数网格上重复训练同一个会话
type Simulator struct {
	config    models.Config
	data      *model.PriceTensor
	benchmark []float64
	options   []azfolio.Option

	mu       sync.Mutex
	outcomes []Outcome
	failures int
}

func New(config models.Config, data *model.PriceTensor, benchmark []float64, options ...azfolio.Option) *Simulator {
	return &Simulator{
		config:    config.WithDefaults(),
		data:      data,
		benchmark: benchmark,
		options:   options,
	}
}

// jobs 为每个参数组合生成 Simulations 次训练任务
func (s *Simulator) jobs() ([]job, error) {
	grid, err := models.Grid(s.config.Parameters)
	if err != nil {
		return nil, err
	}
	for _, param := range s.config.Parameters {
		log.Infof("Parameter %s: min=%v, max=%v, step=%v", param.Name, param.Min, param.Max, param.Step)
	}

	seed := s.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	jobs := make([]job, 0, len(grid)*s.config.Simulations)
	for _, parameters := range grid {
		config, err := s.config.Apply(parameters)
		if err != nil {
			return nil, err
		}
		for i := 0; i < s.config.Simulations; i++ {
			// 每次模拟使用不同的随机种子
			config.Seed = seed + int64(len(jobs))
			jobs = append(jobs, job{simulation: len(jobs), parameters: parameters, config: config})
		}
	}
	return jobs, nil
}

// Run 并发执行所有模拟，结果按动态策略的夏普率降序排列
func (s *Simulator) Run(ctx context.Context) ([]Outcome, error) {
	jobs, err := s.jobs()
	if err != nil {
		return nil, err
	}
	total := len(jobs)
	log.Infof("Running %d simulations with %d workers", total, s.config.Workers)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.config.Workers)
	progress := 0

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(j job) {
			defer wg.Done()
			defer func() {
				<-semaphore
				s.mu.Lock()
				progress++
				if progress%max(1, total/20) == 0 {
					log.Infof("Simulation progress: %.1f%% (%d/%d)",
						float64(progress)/float64(total)*100, progress, total)
				}
				s.mu.Unlock()
			}()

			outcome, err := s.simulate(ctx, j)
			s.mu.Lock()
			defer s.mu.Unlock()
			if err != nil {
				s.failures++
				log.WithError(err).WithField("simulation", j.simulation).Error("simulation failed")
				return
			}
			s.outcomes = append(s.outcomes, outcome)
		}(j)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return s.sorted(), err
	}

	outcomes := s.sorted()
	if len(outcomes) == 0 {
		return nil, ErrNoResults
	}
	s.printTopResults(outcomes, 5)
	return outcomes, nil
}

func (s *Simulator) simulate(ctx context.Context, j job) (Outcome, error) {
	options := append([]azfolio.Option{
		azfolio.WithBenchmark(s.benchmark),
		azfolio.WithProgress(s.config.Workers == 1 && s.config.Verbose),
	}, s.options...)

	trainer, err := azfolio.NewTrainer(j.config, s.data, options...)
	if err != nil {
		return Outcome{}, err
	}

	result, err := trainer.Run(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("simulation %d: %w", j.simulation, err)
	}

	return Outcome{
		Simulation: j.simulation,
		Parameters: j.parameters,
		Key:        result.Key,
		Dynamic:    result.Run.Dynamic,
		Static:     result.Run.Static,
		Equal:      result.Run.EqualWeight,
	}, nil
}

func (s *Simulator) sorted() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make([]Outcome, len(s.outcomes))
	copy(outcomes, s.outcomes)
	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].Dynamic.SharpeRatio == outcomes[j].Dynamic.SharpeRatio {
			return outcomes[i].Simulation < outcomes[j].Simulation
		}
		return outcomes[i].Dynamic.SharpeRatio > outcomes[j].Dynamic.SharpeRatio
	})
	return outcomes
}

// Failures 返回失败的模拟次数
func (s *Simulator) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// printTopResults 输出前 n 个最优结果
func (s *Simulator) printTopResults(outcomes []Outcome, n int) {
	log.Warnf("Simulation success rate: %.01f%%",
		float64(len(outcomes))/float64(len(outcomes)+s.Failures())*100)
	log.Warnf("Best simulations (top %d):", min(n, len(outcomes)))
	log.Warnf("----------------------------------------")
	log.Warnf("Rank | Sharpe | fAPV | MDD | Parameters")
	log.Warnf("----------------------------------------")
	for i := 0; i < min(n, len(outcomes)); i++ {
		o := outcomes[i]
		log.Warnf("#%d | %.3f | %.2f | %.2f%% | %v",
			i+1, o.Dynamic.SharpeRatio, o.Dynamic.PortfolioValue, o.Dynamic.MDD*100, o.Parameters)
	}
	log.Warnf("----------------------------------------")
}
