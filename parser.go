// Package mpfdstream is a streaming parser for multipart/form-data HTTP
// bodies. It consumes the body as an arbitrary sequence of byte chunks —
// chunk boundaries may fall anywhere, including inside delimiters, header
// bytes, or payload — and dispatches decoded part payloads to
// caller-registered targets identified by the part's name field. It never
// buffers the whole body.
//
// This package is a thin construction/re-export shim over
// internal/multipart (the state machine), internal/finder (the
// delimiter scanner), internal/header (the header-block decoder), and
// target (the built-in Target variants): see those packages for the
// implementation. Grounded on the teacher's own top-level re-export shim
// (goguerrilla.go wires together backends/config/server the same way).
package mpfdstream

import (
	"github.com/mailchannels/mpfdstream/contenttype"
	"github.com/mailchannels/mpfdstream/internal/multipart"
	"github.com/mailchannels/mpfdstream/logging"
	"github.com/mailchannels/mpfdstream/target"
)

// Re-exported so callers never need to import internal/multipart
// directly (which they couldn't anyway) or target's dispatch internals.
type (
	Phase       = multipart.Phase
	ParseError  = multipart.ParseError
	ErrorKind   = multipart.ErrorKind
	Target      = target.Target
)

const (
	PhasePreamble       = multipart.PhasePreamble
	PhaseAfterDelimiter = multipart.PhaseAfterDelimiter
	PhasePartHeaders    = multipart.PhasePartHeaders
	PhasePartBody       = multipart.PhasePartBody
	PhaseEpilogue       = multipart.PhaseEpilogue
	PhaseDone           = multipart.PhaseDone
)

const (
	KindContentTypeError             = multipart.KindContentTypeError
	KindHeaderBlockTooLarge          = multipart.KindHeaderBlockTooLarge
	KindMalformedHeaders             = multipart.KindMalformedHeaders
	KindMissingName                  = multipart.KindMissingName
	KindUnexpectedInputAfterDelimiter = multipart.KindUnexpectedInputAfterDelimiter
	KindTruncated                     = multipart.KindTruncated
	KindPushAfterDone                 = multipart.KindPushAfterDone
)

// Option configures a Parser at construction time.
type Option = multipart.Option

// WithMaxHeaderBlock overrides the default 64 KiB advisory header-block
// cap (spec 5).
func WithMaxHeaderBlock(n int) Option { return multipart.WithMaxHeaderBlock(n) }

// WithLogger attaches a logger for advisory warnings (e.g. an
// unrecognized part charset). Optional; omitted by default.
func WithLogger(l logging.Logger) Option { return multipart.WithLogger(l) }

// Parser is a streaming multipart/form-data parser. The zero value is not
// usable; construct with New.
type Parser struct {
	core *multipart.Parser
}

// New constructs a Parser from a set of request headers (case-insensitive
// lookup), extracting Content-Type and its boundary parameter (spec 6.1).
// A missing or malformed Content-Type is a construction error.
func New(headers map[string]string, opts ...Option) (*Parser, error) {
	boundary, err := contenttype.Extract(headers)
	if err != nil {
		return nil, &ParseError{Kind: KindContentTypeError, Err: err}
	}
	return &Parser{core: multipart.New(boundary, opts...)}, nil
}

// NewWithBoundary constructs a Parser directly from an already-extracted
// boundary, for callers that decode Content-Type themselves.
func NewWithBoundary(boundary string, opts ...Option) *Parser {
	return &Parser{core: multipart.New(boundary, opts...)}
}

// Register binds a part name to target t. Must be called before the
// first Push (spec 6.2); duplicate names are a registration error.
func (p *Parser) Register(name string, t Target) error {
	return p.core.Register(name, t)
}

// Push feeds the next chunk of the body, in any partitioning the caller
// chooses — including empty or single-byte chunks. Returns nil on
// success or a *ParseError; once an error is returned, every subsequent
// Push/EOF call returns that same error.
func (p *Parser) Push(chunk []byte) error {
	return p.core.Push(chunk)
}

// EOF signals end of input, validating that the closing delimiter was
// reached. Idempotent once Done.
func (p *Parser) EOF() error {
	return p.core.EOF()
}

// Phase reports the parser's current state (spec 4.3).
func (p *Parser) Phase() Phase {
	return p.core.Phase()
}
