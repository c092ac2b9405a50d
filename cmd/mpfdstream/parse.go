package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailchannels/mpfdstream"
	"github.com/mailchannels/mpfdstream/multipartcfg"
	"github.com/mailchannels/mpfdstream/target"
)

var (
	configPath string
	boundary   string
	inputPath  string
	chunkSize  int
	stress     bool

	parseCmd = &cobra.Command{
		Use:   "parse",
		Short: "parse a multipart/form-data body and report per-target byte counts",
		RunE:  runParse,
	}
)

func init() {
	parseCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the target configuration JSON file (required)")
	parseCmd.Flags().StringVarP(&boundary, "boundary", "b", "", "multipart boundary, without the leading --  (required)")
	parseCmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to the body file; defaults to stdin")
	parseCmd.Flags().IntVar(&chunkSize, "chunk-size", 4096, "size of each chunk fed to the parser")
	parseCmd.Flags().BoolVar(&stress, "stress", false, "ignore --chunk-size and re-run the parse once per interesting chunk size (1..len(body))")
	_ = parseCmd.MarkFlagRequired("config")
	_ = parseCmd.MarkFlagRequired("boundary")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := multipartcfg.ReadConfig(configPath)
	if err != nil {
		return err
	}

	body, err := readInput()
	if err != nil {
		return err
	}

	if stress {
		return runStress(cfg, body)
	}

	stats, err := runOnce(cfg, body, chunkSize)
	if err != nil {
		return err
	}
	printStats(chunkSize, stats)
	return nil
}

func readInput() ([]byte, error) {
	if inputPath == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(inputPath)
}

// runOnce builds a fresh set of targets and parser, streams body through it
// in chunkSize-sized pieces, and returns per-target byte counts.
func runOnce(cfg *multipartcfg.Config, body []byte, chunkSize int) (map[string]int, error) {
	targets, err := cfg.BuildTargets()
	if err != nil {
		return nil, err
	}

	opts := []mpfdstream.Option{}
	if cfg.MaxHeaderBlock > 0 {
		opts = append(opts, mpfdstream.WithMaxHeaderBlock(cfg.MaxHeaderBlock))
	}
	p := mpfdstream.NewWithBoundary(boundary, opts...)

	counting := make(map[string]*countingTarget, len(targets))
	for name, t := range targets {
		ct := &countingTarget{Target: t}
		counting[name] = ct
		if err := p.Register(name, ct); err != nil {
			return nil, err
		}
	}

	if chunkSize <= 0 {
		chunkSize = 1
	}
	for i := 0; i < len(body); i += chunkSize {
		end := i + chunkSize
		if end > len(body) {
			end = len(body)
		}
		if err := p.Push(body[i:end]); err != nil {
			return nil, fmt.Errorf("parse error at chunk size %d: %w", chunkSize, err)
		}
	}
	if err := p.EOF(); err != nil {
		return nil, fmt.Errorf("parse error at chunk size %d: %w", chunkSize, err)
	}

	stats := make(map[string]int, len(counting))
	for name, ct := range counting {
		stats[name] = ct.n
	}
	return stats, nil
}

func runStress(cfg *multipartcfg.Config, body []byte) error {
	for size := 1; size <= len(body); size++ {
		if !isInterestingNumber(size) {
			continue
		}
		stats, err := runOnce(cfg, body, size)
		if err != nil {
			return err
		}
		printStats(size, stats)
	}
	return nil
}

func printStats(chunkSize int, stats map[string]int) {
	fmt.Printf("chunk_size=%d\n", chunkSize)
	for name, n := range stats {
		fmt.Printf("  %s: %d bytes\n", name, n)
	}
}

// countingTarget wraps a target.Target to tally DataReceived byte counts
// without altering its behavior.
type countingTarget struct {
	target.Target
	n int
}

func (c *countingTarget) DataReceived(p []byte) error {
	c.n += len(p)
	return c.Target.DataReceived(p)
}

// isInterestingNumber reproduces the stress generator's selection of chunk
// sizes worth testing instead of sweeping every size from 1 to len(body):
// primes, numbers adjacent to a power of 2 or 10, numbers adjacent to a
// multiple of 1000 or 1024, and perfect squares.
func isInterestingNumber(n int) bool {
	if isPrime(n) {
		return true
	}
	if isPowerOf(n, 2) || isPowerOf(n-1, 2) || isPowerOf(n+1, 2) {
		return true
	}
	if isPowerOf(n, 10) || isPowerOf(n-1, 10) || isPowerOf(n+1, 10) {
		return true
	}
	if isMultiple(n, 1024) || isMultiple(n-1, 1024) || isMultiple(n+1, 1024) {
		return true
	}
	if isMultiple(n, 1000) || isMultiple(n-1, 1000) || isMultiple(n+1, 1000) {
		return true
	}
	return isSquare(n)
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := 3; i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

func isPowerOf(n, base int) bool {
	if n <= 0 {
		return false
	}
	for n > 1 {
		if n%base != 0 {
			return false
		}
		n /= base
	}
	return true
}

func isSquare(n int) bool {
	if n < 0 {
		return false
	}
	sq := int(math.Sqrt(float64(n)))
	for _, c := range []int{sq - 1, sq, sq + 1} {
		if c >= 0 && c*c == n {
			return true
		}
	}
	return false
}

func isMultiple(n, base int) bool {
	return n > 0 && n%base == 0
}
