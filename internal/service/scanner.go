package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ScanOptions is the uniform request every platform scanner accepts.
type ScanOptions struct {
	MaxPosts    int      `json:"max_posts"`
	SearchTerms []string `json:"search_terms,omitempty"`
}

// ScanResult is the tagged per-scanner result validated at the boundary
// before it feeds buffer statistics.
type ScanResult struct {
	TotalFound int      `json:"total_found"`
	Processed  int      `json:"processed"`
	Approved   int      `json:"approved"`
	Rejected   int      `json:"rejected"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
}

// Validate rejects results whose counts cannot have come from a real scan.
func (r *ScanResult) Validate() error {
	if r.TotalFound < 0 || r.Processed < 0 || r.Approved < 0 || r.Rejected < 0 || r.Duplicates < 0 {
		return fmt.Errorf("negative counts in scan result")
	}
	if r.Processed > r.TotalFound {
		return fmt.Errorf("processed %d exceeds total found %d", r.Processed, r.TotalFound)
	}
	if r.Approved+r.Rejected+r.Duplicates > r.Processed {
		return fmt.Errorf("outcome counts exceed processed count %d", r.Processed)
	}
	return nil
}

// Scanner is the interface each platform integration implements. The core
// treats implementations as opaque and only folds their counts into buffer
// estimation.
type Scanner interface {
	Platform() string
	PerformScan(ctx context.Context, opts ScanOptions) (*ScanResult, error)
}

// ScannerRegistry holds the available platform scanners.
type ScannerRegistry struct {
	scanners map[string]Scanner
	logger   *zap.Logger
}

func NewScannerRegistry(logger *zap.Logger) *ScannerRegistry {
	return &ScannerRegistry{
		scanners: make(map[string]Scanner),
		logger:   logger,
	}
}

func (r *ScannerRegistry) Register(scanner Scanner) error {
	platform := strings.ToLower(scanner.Platform())
	if _, exists := r.scanners[platform]; exists {
		return fmt.Errorf("scanner for platform %s already registered", platform)
	}

	r.scanners[platform] = scanner
	r.logger.Info("Scanner registered", zap.String("platform", platform))
	return nil
}

func (r *ScannerRegistry) Get(platform string) (Scanner, error) {
	scanner, exists := r.scanners[strings.ToLower(platform)]
	if !exists {
		return nil, fmt.Errorf("scanner for platform %s not found", platform)
	}
	return scanner, nil
}

func (r *ScannerRegistry) Platforms() []string {
	var platforms []string
	for platform := range r.scanners {
		platforms = append(platforms, platform)
	}
	return platforms
}
