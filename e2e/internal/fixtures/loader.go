// Package fixtures loads expected-state documents from a static file tree.
package fixtures

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound  = errors.New("expected-state source not found")
	ErrMalformed = errors.New("malformed expected-state source")
)

type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type Option func(*Loader)

// WithData sets the data passed to .tmpl sources.
func WithData(data any) Option {
	return func(l *Loader) { l.data = data }
}

// WithNormalizer applies fn to every document when it is first loaded.
func WithNormalizer(fn func(jsoncmp.Value) (jsoncmp.Value, error)) Option {
	return func(l *Loader) { l.normalize = fn }
}

// WithTTL expires cached documents after ttl. The default is to keep them for the
// life of the loader.
func WithTTL(ttl time.Duration) Option {
	return func(l *Loader) { l.ttl = ttl }
}

// Loader reads expected-state documents from fsys. Each source is read and parsed
// once; later loads are served from the cache.
type Loader struct {
	fsys      fs.FS
	data      any
	normalize func(jsoncmp.Value) (jsoncmp.Value, error)
	ttl       time.Duration
	cache     *ttlcache.Cache[string, jsoncmp.Value]
}

func NewLoader(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{fsys: fsys}
	for _, opt := range opts {
		opt(l)
	}
	l.cache = ttlcache.New(
		ttlcache.WithTTL[string, jsoncmp.Value](l.ttl),
		ttlcache.WithDisableTouchOnHit[string, jsoncmp.Value](),
	)
	return l
}

// Load returns the document at source. Callers get their own copy. Every failure
// is a *LoadError.
func (l *Loader) Load(source string) (jsoncmp.Value, error) {
	if item := l.cache.Get(source); item != nil {
		return jsoncmp.Clone(item.Value()), nil
	}

	doc, err := l.read(source)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	l.cache.Set(source, doc, ttlcache.DefaultTTL)
	return jsoncmp.Clone(doc), nil
}

// Cached reports whether source is held in the cache.
func (l *Loader) Cached(source string) bool {
	return l.cache.Has(source)
}

func (l *Loader) read(source string) (jsoncmp.Value, error) {
	if !fs.ValidPath(source) {
		return nil, fmt.Errorf("%w: invalid path", ErrNotFound)
	}
	raw, err := fs.ReadFile(l.fsys, source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, err
	}

	name := source
	if strings.HasSuffix(name, ".tmpl") {
		name = strings.TrimSuffix(name, ".tmpl")
		raw, err = Render(source, raw, l.data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	doc, err := decode(name, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if l.normalize != nil {
		doc, err = l.normalize(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return doc, nil
}

func decode(name string, raw []byte) (jsoncmp.Value, error) {
	switch ext := path.Ext(name); ext {
	case ".json":
		return jsoncmp.Parse(raw)
	case ".yaml", ".yml":
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, err
		}
		if tree == nil {
			return nil, errors.New("empty document")
		}
		return jsoncmp.FromAny(tree)
	default:
		return nil, fmt.Errorf("unsupported extension %q", ext)
	}
}
