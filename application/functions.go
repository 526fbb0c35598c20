package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"sync"
	"time"

	"tsforecast/config"
	"tsforecast/dataset"
	"tsforecast/filtering"
	"tsforecast/logging"
	"tsforecast/timeseries"
)

// load reads the configuration file (or the defaults), applies the global
// flags and configures logging.
func (g *Globals) load() (config.Config, error) {
	cfg := config.Default()
	if g.Config != "" {
		var err error
		if cfg, err = config.Load(g.Config); err != nil {
			return cfg, err
		}
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	logging.Configure(cfg.Log)
	if g.stdout == nil {
		g.stdout = os.Stdout
	}
	return cfg, nil
}

// Run builds the dataset and prints its size and the requested samples.
func (c *DatasetCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	log := logging.GetLog("application")

	// 1. Command line overrides
	if c.TimeColumn != "" {
		cfg.Dataset.TimeColumn = c.TimeColumn
	}
	if c.InputChunkLength > 0 {
		cfg.Dataset.InputChunkLength = c.InputChunkLength
	}
	if c.OutputChunkLength > 0 {
		cfg.Dataset.OutputChunkLength = c.OutputChunkLength
	}
	if c.MaxSamples >= 0 {
		cfg.Dataset.MaxSamplesPerSeries = c.MaxSamples
	}

	// 2. Load series
	targets, err := loadSeries(c.Targets, cfg.Dataset.TimeColumn)
	if err != nil {
		return err
	}
	var covariates []*timeseries.TimeSeries
	if len(c.Covariates) > 0 {
		if covariates, err = loadSeries(c.Covariates, cfg.Dataset.TimeColumn); err != nil {
			return err
		}
	}

	// 3. Build dataset
	ds, err := dataset.NewSequentialDataset(targets, covariates, cfg.DatasetOptions())
	if err != nil {
		return err
	}
	log.Info("dataset ready", "series", ds.NumSeries(), "samples", ds.Len())
	PrintDatasetSummary(g.stdout, ds, c.Targets)

	// 4. Requested samples
	for _, idx := range c.Index {
		sample, err := ds.Get(idx)
		if err != nil {
			return err
		}
		PrintSample(g.stdout, idx, sample)
	}

	// 5. Shuffled order
	if c.Shuffle != 0 {
		PrintOrder(g.stdout, ds.Indices(c.Shuffle))
	}
	return nil
}

// Run fits a filter to every target, filters it and writes the result next
// to the others in OutDir.
func (c *FilterCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	log := logging.GetLog("application")

	// 1. Command line overrides
	if c.TimeColumn != "" {
		cfg.Dataset.TimeColumn = c.TimeColumn
	}
	if c.DimX > 0 {
		cfg.Filter.DimX = c.DimX
	}
	if c.NumSamples > 0 {
		cfg.Filter.NumSamples = c.NumSamples
	}
	if c.Seed != 0 {
		cfg.Filter.Seed = c.Seed
	}
	if len(c.Covariates) > 0 && len(c.Covariates) != len(c.Targets) {
		return fmt.Errorf("%d covariate files for %d targets", len(c.Covariates), len(c.Targets))
	}
	if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", c.OutDir, err)
	}

	// 2. Load series
	targets, err := loadSeries(c.Targets, cfg.Dataset.TimeColumn)
	if err != nil {
		return err
	}
	var covariates []*timeseries.TimeSeries
	if len(c.Covariates) > 0 {
		if covariates, err = loadSeries(c.Covariates, cfg.Dataset.TimeColumn); err != nil {
			return err
		}
	}

	// 3. Per-job seeds, so the random sources are not shared across workers
	seeds := jobSeeds(cfg.Filter.Seed, len(targets))
	jobs := make([]filterJob, len(targets))
	for i := range targets {
		jobs[i] = filterJob{index: i, path: c.Targets[i], target: targets[i], seed: seeds[i]}
		if covariates != nil {
			jobs[i].covariate = covariates[i]
		}
	}

	// 4. Fit and filter
	start := time.Now()
	results := filterAll(jobs, cfg.FilterOptions(), cfg.Filter.NumSamples, c.Workers)

	// 5. Write outputs
	var errs []error
	for _, res := range results {
		if res.err != nil {
			log.Error("filter failed", "target", res.path, "error", res.err)
			errs = append(errs, fmt.Errorf("%s: %w", res.path, res.err))
			continue
		}
		if c.PrintModel {
			PrintModel(g.stdout, res.path, res.model)
		}
		out := outputPath(c.OutDir, res.path)
		if err := timeseries.SaveCSV(out, res.output); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(g.stdout, "%s -> %s (%d steps, %d samples)\n",
			res.path, out, res.output.Len(), res.output.NumSamples())
	}
	log.Info("filter done", "targets", len(jobs), "failed", len(errs), "elapsed", time.Since(start))
	return errors.Join(errs...)
}

// jobSeeds derives one seed per job from master. A zero master keeps every
// job seed at zero, which leaves each sampler time-seeded.
func jobSeeds(master uint64, n int) []uint64 {
	seeds := make([]uint64, n)
	if master == 0 {
		return seeds
	}
	rng := rand.New(rand.NewPCG(master, master))
	for i := range seeds {
		for seeds[i] == 0 {
			seeds[i] = rng.Uint64()
		}
	}
	return seeds
}

// filterAll runs every job on a pool of workers and returns the results in
// job order. A failed job does not stop the others.
func filterAll(jobs []filterJob, opts filtering.Config, numSamples, numWorkers int) []filterResult {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	jobCh := make(chan filterJob)
	resultsCh := make(chan filterResult, len(jobs))

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	worker := func() {
		defer wg.Done()
		for job := range jobCh {
			resultsCh <- runFilterJob(job, opts, numSamples)
		}
	}
	for w := 0; w < numWorkers; w++ {
		go worker()
	}

	go func() {
		for _, job := range jobs {
			jobCh <- job
		}
		close(jobCh)
	}()

	results := make([]filterResult, len(jobs))
	for i := 0; i < len(jobs); i++ {
		res := <-resultsCh
		results[res.index] = res
	}
	wg.Wait()
	close(resultsCh)

	return results
}

func runFilterJob(job filterJob, opts filtering.Config, numSamples int) filterResult {
	res := filterResult{index: job.index, path: job.path}

	opts.Seed = job.seed
	kf := filtering.NewKalmanFilter(opts)
	if res.err = kf.Fit(job.target, job.covariate); res.err != nil {
		return res
	}
	res.model = kf.Model()
	res.output, res.err = kf.Filter(job.target, job.covariate, numSamples)
	return res
}
