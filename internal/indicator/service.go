// Package indicator computes quality indicators across every selected
// center and aggregates them into population-level values.
package indicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/query"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
)

var (
	ErrNoSources    = errors.New("no sources selected")
	ErrNoIndicators = errors.New("no indicators selected")
)

// Executor is the slice of the federated executor the pipeline needs.
type Executor interface {
	Execute(ctx context.Context, sources []source.Descriptor, queries []string) []source.Outcome
}

// Progress is one pipeline step notification.
type Progress struct {
	RunID   uuid.UUID `json:"run_id"`
	Step    int       `json:"step"`
	Percent int       `json:"percent"`
	Message string    `json:"message"`
}

// ProgressFunc receives step notifications during a run. May be nil.
type ProgressFunc func(Progress)

// RunRequest names the period, the centers and the indicators of one batch.
type RunRequest struct {
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Sources    []string `json:"sources"`
	Indicators []string `json:"indicators"`
}

// Service drives the indicator pipeline: parameterize per source, execute,
// normalize, aggregate. Catalogs are loaded once and shared read-only.
type Service struct {
	catalogs *catalog.Bundle
	params   *query.Parameterizer
	registry *source.Registry
	exec     Executor
	log      zerolog.Logger
}

func NewService(catalogs *catalog.Bundle, registry *source.Registry, exec Executor, log zerolog.Logger) *Service {
	return &Service{
		catalogs: catalogs,
		params:   query.NewParameterizer(query.BundleSource{Bundle: catalogs}, log),
		registry: registry,
		exec:     exec,
		log:      log,
	}
}

// Definitions lists the indicator catalog.
func (s *Service) Definitions() []catalog.Indicator {
	return s.catalogs.Indicators.All()
}

// SourceList lists every configured center.
func (s *Service) SourceList() []source.Descriptor {
	return s.registry.All()
}

// Run computes every requested indicator over the period. A bad source or
// a bad indicator never aborts the batch; an invalid period or empty
// source/indicator list does.
func (s *Service) Run(ctx context.Context, req RunRequest, onProgress ProgressFunc) (*Run, error) {
	iv, err := query.ParseInterval(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if len(req.Sources) == 0 {
		return nil, ErrNoSources
	}
	if len(req.Indicators) == 0 {
		return nil, ErrNoIndicators
	}

	sources, err := s.registry.Select(req.Sources)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSources, err)
	}

	run := &Run{
		ID:        uuid.New(),
		Start:     iv.StartISO(),
		End:       iv.EndISO(),
		CreatedAt: time.Now().UTC(),
	}
	for _, d := range sources {
		run.Sources = append(run.Sources, d.DisplayName())
	}

	totalSteps := len(req.Indicators) + 2
	step := 0
	advance := func(msg string) {
		step++
		p := Progress{RunID: run.ID, Step: step, Percent: step * 100 / totalSteps, Message: msg}
		s.log.Info().Int("step", p.Step).Int("percent", p.Percent).Msg(msg)
		if onProgress != nil {
			onProgress(p)
		}
	}

	advance("loading indicator catalog")

	for _, idCode := range req.Indicators {
		advance(fmt.Sprintf("processing indicator %s", idCode))

		def, ok := s.catalogs.Indicators.Get(idCode)
		if !ok {
			s.log.Error().Str("id_code", idCode).Msg("indicator not in catalog")
			run.Indicators = append(run.Indicators, Result{
				IDCode:    idCode,
				Err:       "indicator not found in catalog",
				PerSource: []SourceResult{},
			})
			continue
		}

		run.Indicators = append(run.Indicators, s.computeOne(ctx, def, sources, iv))
	}

	advance("run completed")
	return run, nil
}

func (s *Service) computeOne(ctx context.Context, def catalog.Indicator, sources []source.Descriptor, iv query.Interval) Result {
	queries := make([]string, len(sources))
	for i, d := range sources {
		q := s.params.Apply(def.Template, d.CatalogKeys(), iv)
		if leftovers := query.Unresolved(q); len(leftovers) > 0 {
			// dispatched anyway: the source rejects it and the failure
			// lands in that source's error entry
			s.log.Warn().
				Str("id_code", def.IDCode).
				Str("source", d.DisplayName()).
				Strs("tokens", leftovers).
				Msg("unresolved placeholder tokens in parameterized query")
		}
		queries[i] = q
	}

	outcomes := s.exec.Execute(ctx, sources, queries)

	res := Result{
		IDCode:    def.IDCode,
		Categoria: def.Categoria,
		Label:     def.Label,
		Unit:      def.Unit,
	}
	for _, o := range outcomes {
		sr := SourceResult{
			SourceID: o.Source.Code,
			Source:   o.Source.DisplayName(),
		}
		if o.Err != nil {
			sr.Err = o.Err.Error()
		} else {
			sr.Value, sr.Population = Normalize(o.Rows)
		}
		res.PerSource = append(res.PerSource, sr)
	}

	res.TotalValue, res.TotalPopulation = Aggregate(res.PerSource, def)
	return res
}
