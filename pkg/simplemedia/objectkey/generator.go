package objectkey

import (
	"fmt"
	"strings"
	"time"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates the object key for content with the given hex
	// digest. extension is appended verbatim, including its leading dot.
	GenerateKey(digest, extension string, at time.Time) string
}

// Strategy names accepted by NewGenerator.
const (
	StrategyDate    = "date"
	StrategySharded = "sharded"
	StrategyFlat    = "flat"
)

// DateGenerator groups objects by upload day: yyyy/MM/dd/<digest><ext>.
// The date is taken in UTC.
type DateGenerator struct{}

func NewDateGenerator() *DateGenerator {
	return &DateGenerator{}
}

func (g *DateGenerator) GenerateKey(digest, extension string, at time.Time) string {
	return at.UTC().Format("2006/01/02") + "/" + digest + extension
}

// ShardedGenerator provides Git-style sharding on the digest:
// ab/cd/abcd1234...<ext>
type ShardedGenerator struct {
	// ShardLength controls how many characters each of the two shard
	// directories uses (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) GenerateKey(digest, extension string, _ time.Time) string {
	n := g.ShardLength
	if n <= 0 {
		n = 2
	}
	if len(digest) < 2*n {
		return digest + extension
	}
	return fmt.Sprintf("%s/%s/%s%s", digest[:n], digest[n:2*n], digest, extension)
}

// FlatGenerator stores every object at the bucket root.
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(digest, extension string, _ time.Time) string {
	return digest + extension
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(digest, extension string, at time.Time) string
}

func NewCustomFuncGenerator(fn func(digest, extension string, at time.Time) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(digest, extension string, at time.Time) string {
	return g.GenerateFunc(digest, extension, at)
}

// NewGenerator returns the generator registered under name. An empty name
// selects the date layout.
func NewGenerator(name string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyDate:
		return NewDateGenerator(), nil
	case StrategySharded:
		return NewShardedGenerator(), nil
	case StrategyFlat:
		return NewFlatGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key strategy: %s", name)
	}
}

// NewRecommendedGenerator returns the generator used when none is configured
func NewRecommendedGenerator() Generator {
	return NewDateGenerator()
}
