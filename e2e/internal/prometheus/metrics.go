// Package prometheus scrapes a text-format metrics endpoint, such as the one
// bfdcheck serves while checking, and reads samples back out of it.
package prometheus

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	prom "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

type Sample struct {
	Labels map[string]string
	Value  float64
}

type Scraper struct {
	url        string
	httpClient *http.Client
	families   map[string]*prom.MetricFamily
}

func NewScraper(url string) *Scraper {
	return &Scraper{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		families:   make(map[string]*prom.MetricFamily),
	}
}

// WaitForReady polls the endpoint until one scrape succeeds.
func (s *Scraper) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return poll.Until(ctx, func() (bool, error) {
		// Connection refused is expected while the server starts.
		return s.Scrape(ctx) == nil, nil
	}, timeout, 100*time.Millisecond)
}

func (s *Scraper) Scrape(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scrape %s: unexpected status %s", s.url, resp.Status)
	}

	parser := expfmt.NewTextParser(model.LegacyValidation)
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", s.url, err)
	}
	s.families = families
	return nil
}

// Counters returns every sample of a counter family from the last scrape.
func (s *Scraper) Counters(name string) []Sample {
	return s.samples(name, func(m *prom.Metric) (float64, bool) {
		if m.Counter == nil {
			return 0, false
		}
		return m.Counter.GetValue(), true
	})
}

// HistogramCounts returns the observation count of every series of a
// histogram family.
func (s *Scraper) HistogramCounts(name string) []Sample {
	return s.samples(name, func(m *prom.Metric) (float64, bool) {
		if m.Histogram == nil {
			return 0, false
		}
		return float64(m.Histogram.GetSampleCount()), true
	})
}

// Counter sums the counter samples whose labels include want.
func (s *Scraper) Counter(name string, want map[string]string) float64 {
	var total float64
	for _, sample := range s.Counters(name) {
		if matches(sample.Labels, want) {
			total += sample.Value
		}
	}
	return total
}

func (s *Scraper) samples(name string, value func(*prom.Metric) (float64, bool)) []Sample {
	family, ok := s.families[name]
	if !ok {
		return nil
	}
	var out []Sample
	for _, metric := range family.Metric {
		v, ok := value(metric)
		if !ok {
			continue
		}
		labels := make(map[string]string, len(metric.Label))
		for _, label := range metric.Label {
			labels[label.GetName()] = label.GetValue()
		}
		out = append(out, Sample{Labels: labels, Value: v})
	}
	return out
}

func matches(labels, want map[string]string) bool {
	sub := make(map[string]string, len(want))
	for k := range want {
		if v, ok := labels[k]; ok {
			sub[k] = v
		}
	}
	return maps.Equal(sub, want)
}
