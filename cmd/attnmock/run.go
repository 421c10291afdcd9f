package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/23skdu/longbow-attnmock/internal/arrow_client"
	"github.com/23skdu/longbow-attnmock/internal/attention"
	"github.com/23skdu/longbow-attnmock/internal/config"
	"github.com/23skdu/longbow-attnmock/internal/fixture"
	"github.com/23skdu/longbow-attnmock/internal/logger"
	"github.com/23skdu/longbow-attnmock/internal/metrics"
	"github.com/23skdu/longbow-attnmock/internal/tokens"
)

type dialFunc func(cfg config.Config) (arrow_client.Publisher, error)

type result struct {
	Sequence    *tokens.Sequence
	Record      *fixture.Record
	Files       []fixture.File
	Fingerprint uint64
}

func run(ctx context.Context, cfg config.Config, dial dialFunc) (*result, error) {
	if err := cfg.Validate(); err != nil {
		metrics.RecordValidationError("config")
		return nil, err
	}

	seq, err := tokens.Build(tokens.Spec{
		Rows:       cfg.GridRows,
		Cols:       cfg.GridCols,
		Count:      cfg.ImageTokens,
		ImageToken: cfg.ImageToken,
		RolePrefix: cfg.RolePrefix,
		ClassToken: cfg.ClassToken,
		Leading:    cfg.LeadingText,
		Trailing:   cfg.TrailingText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build token sequence: %w", err)
	}
	if seq.Len() != cfg.NumTokens() {
		return nil, fmt.Errorf("token sequence has %d tokens, expected %d", seq.Len(), cfg.NumTokens())
	}

	dense := seq.DenseRange()
	logger.Log.Info("Token sequence built",
		"grid", fmt.Sprintf("%dx%d", seq.GridRows, seq.GridCols),
		"tokens", seq.Len(),
		"image_tokens", seq.ImageCount,
		"image_start", seq.ImageStart,
		"dense_start", dense.Start,
		"dense_end", dense.End,
		"heads", cfg.Heads,
	)

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = progressbar.NewOptions(cfg.Heads,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Generating heads"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	gen := &attention.Generator{
		Tokens:    seq.Len(),
		Dense:     dense,
		Heads:     cfg.Heads,
		SeedBase:  cfg.SeedBase,
		Precision: cfg.Precision,
		OnHead: func(h int, m *attention.Matrix) {
			metrics.RecordHead()
			if bar != nil {
				bar.Add(1)
			}
			lo, hi := m.MinMax()
			logger.Log.With("head", h, "seed", cfg.SeedBase+int64(h)).Debug("Head generated", "min", lo, "max", hi)
		},
	}

	start := time.Now()
	set, err := gen.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attention: %w", err)
	}
	if bar != nil {
		bar.Finish()
	}
	metrics.RecordGeneration(seq.Len(), time.Since(start))
	metrics.RecordRange(set.Min, set.Max)

	if err := checkHeads(set.Rounded, dense, cfg.Precision); err != nil {
		return nil, err
	}

	res := &result{
		Sequence:    seq,
		Record:      fixture.NewRecord(seq, set, cfg.ImageURL),
		Fingerprint: attention.Fingerprint(set.Rounded),
	}
	logger.Log.Info("Attention generated",
		"min", set.Min,
		"max", set.Max,
		"fingerprint", fmt.Sprintf("%016x", res.Fingerprint),
		"duration", time.Since(start),
	)

	if res.Files, err = fixture.Write(cfg.Output, cfg.Layout, res.Record); err != nil {
		return nil, err
	}
	for _, f := range res.Files {
		metrics.RecordWrite(f.Kind, f.Bytes)
		logger.Log.Info("Fixture written", "path", f.Path, "kind", f.Kind, "bytes", f.Bytes)
	}
	metrics.RecordFixture(string(cfg.Layout))

	if cfg.Verify {
		if err := verify(cfg, res); err != nil {
			return nil, fmt.Errorf("verification of %s failed: %w", cfg.Output, err)
		}
		logger.Log.Info("Fixture verified", "path", cfg.Output)
	}

	if cfg.FlightAddr != "" {
		err := publish(ctx, cfg, dial, res.Record)
		metrics.RecordFlightPublish(err)
		if err != nil {
			return nil, err
		}
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return nil, fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	return res, nil
}

func checkHeads(heads []*attention.Matrix, dense tokens.Range, precision int) error {
	for h, m := range heads {
		if err := attention.Check(m, dense, attention.RoundingTolerance(m.N, precision)); err != nil {
			var ce *attention.CheckError
			if errors.As(err, &ce) {
				metrics.RecordValidationError(ce.Check)
			}
			return fmt.Errorf("head %d: %w", h, err)
		}
	}
	return nil
}

// verify reads the written fixture back and checks it matches what was
// generated.
func verify(cfg config.Config, res *result) error {
	rec, err := fixture.Read(cfg.Output, cfg.Layout)
	if err != nil {
		return err
	}
	seq, err := tokens.Locate(rec.Tokens, cfg.ImageToken, cfg.ClassToken)
	if err != nil {
		return err
	}
	if seq.ImageCount != res.Sequence.ImageCount {
		return fmt.Errorf("read %d image tokens, wrote %d", seq.ImageCount, res.Sequence.ImageCount)
	}
	if rec.ImageTokensStart == nil || *rec.ImageTokensStart != seq.ImageStart {
		return fmt.Errorf("image_tokens_start does not match token positions (block at %d)", seq.ImageStart)
	}

	heads, err := rec.Matrices()
	if err != nil {
		return err
	}
	if err := checkHeads(heads, seq.DenseRange(), cfg.Precision); err != nil {
		return err
	}
	if fp := attention.Fingerprint(heads); fp != res.Fingerprint {
		return fmt.Errorf("fingerprint %016x differs from generated %016x", fp, res.Fingerprint)
	}
	return nil
}

func publish(ctx context.Context, cfg config.Config, dial dialFunc, rec *fixture.Record) error {
	pub, err := dial(cfg)
	if err != nil {
		return fmt.Errorf("failed to create flight client: %w", err)
	}
	if err := pub.Connect(ctx); err != nil {
		return err
	}
	defer pub.Close()

	path := strings.TrimSuffix(filepath.Base(cfg.Output), filepath.Ext(cfg.Output))
	if err := pub.DoPut(ctx, path, rec); err != nil {
		return fmt.Errorf("failed to publish fixture: %w", err)
	}
	logger.Log.Info("Fixture published", "flight", cfg.FlightAddr, "path", path)
	return nil
}
