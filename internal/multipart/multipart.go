// Package multipart is the chunk-boundary-tolerant multipart/form-data
// state machine (spec component C). It orchestrates progress through
// preamble -> part-header -> part-body -> next-delimiter -> ... ->
// closing-delimiter -> epilogue, using internal/finder to locate boundary
// markers and internal/header to decode each part's header block, and
// internal/dispatch to deliver payload bytes to the caller's targets.
//
// Grounded on mail/mime/mime.go's Parser.boundary/header orchestration
// (the overall preamble -> header -> body -> next-boundary loop is the
// same shape) but re-architected around a synchronous, single-threaded
// push(bytes)/eof() API instead of the teacher's goroutine-and-channel
// blocking reader (p.more()/p.next()), per spec 5: "No internal threads,
// no suspension points, no asynchrony."
package multipart

import (
	"errors"
	"fmt"

	"github.com/mailchannels/mpfdstream/internal/dispatch"
	"github.com/mailchannels/mpfdstream/internal/finder"
	"github.com/mailchannels/mpfdstream/internal/header"
	"github.com/mailchannels/mpfdstream/logging"
	"github.com/mailchannels/mpfdstream/target"
)

// Phase is one state of the machine described in spec 4.3.
type Phase int

const (
	PhasePreamble Phase = iota
	PhaseAfterDelimiter
	PhasePartHeaders
	PhasePartBody
	PhaseEpilogue
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePreamble:
		return "Preamble"
	case PhaseAfterDelimiter:
		return "AfterDelimiter"
	case PhasePartHeaders:
		return "PartHeaders"
	case PhasePartBody:
		return "PartBody"
	case PhaseEpilogue:
		return "Epilogue"
	case PhaseDone:
		return "Done"
	default:
		return "Unknown"
	}
}

const defaultMaxHeaderBlock = 64 * 1024 // advisory default, spec 5

var headerTerminator = []byte("\r\n\r\n")

// Parser is the multipart state machine. Construct with New, Register
// targets, then drive it with Push/EOF.
type Parser struct {
	boundary []byte
	delim    []byte // CRLF + "--" + boundary

	table      *dispatch.Table
	dispatcher *dispatch.Dispatcher

	phase Phase
	err   *ParseError
	pos   uint64 // approximate total bytes observed, for error offsets

	maxHeaderBlock int

	preambleFinder *finder.Finder

	afterDelimBuf []byte // up to 2 bytes of lookahead after a delimiter

	headerFinder *finder.Finder
	headerAccum  []byte

	bodyFinder  *finder.Finder
	currentPart *dispatch.Part
	partRegistered bool

	logger logging.Logger
}

// Option configures a Parser at construction time.
type Option func(*Parser)

// WithMaxHeaderBlock overrides the default 64 KiB advisory header-block
// cap (spec 5).
func WithMaxHeaderBlock(n int) Option {
	return func(p *Parser) { p.maxHeaderBlock = n }
}

// WithLogger attaches a logger used to warn about recognized-but-advisory
// conditions, such as a part declaring an unrecognized charset (spec
// Non-goals exclude charset conversion; this only surfaces a warning). A
// nil logger (the default) silently skips these warnings.
func WithLogger(l logging.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// New constructs a Parser for the given boundary (without the leading
// "--", as extracted from the Content-Type boundary parameter by the
// caller's HTTP header decoder — see contenttype.Extract). Construction
// cannot fail; a malformed/missing boundary is the caller's
// responsibility to detect before calling New (spec 6.1: that failure is
// a ContentTypeError raised by the header decoder, out of this
// component's scope).
func New(boundary string, opts ...Option) *Parser {
	delim := append([]byte("\r\n--"), boundary...)
	p := &Parser{
		boundary:       []byte(boundary),
		delim:          delim,
		table:          dispatch.NewTable(),
		maxHeaderBlock: defaultMaxHeaderBlock,
		phase:          PhasePreamble,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.dispatcher = dispatch.NewDispatcher(p.table)

	// Prime the preamble finder with a virtual leading CRLF so that a
	// bare "--boundary" at the very start of the body (no preceding
	// CRLF, spec 3/4.3) is matched by the exact same scan that finds a
	// CRLF-prefixed delimiter later in the preamble.
	p.preambleFinder = finder.New(p.delim)
	p.preambleFinder.Feed([]byte("\r\n"))

	return p
}

// Register binds name to target t. Must be called before the first
// Push (spec 6.2).
func (p *Parser) Register(name string, t target.Target) error {
	return p.table.Register(name, t)
}

// Phase returns the parser's current phase.
func (p *Parser) Phase() Phase { return p.phase }

// Push feeds the next chunk of the body. Chunks may be any non-negative
// size, including zero (a no-op) or one byte.
func (p *Parser) Push(chunk []byte) error {
	if p.err != nil {
		return p.err
	}
	if p.phase == PhaseDone {
		p.err = newError(KindPushAfterDone, p.pos, nil)
		return p.err
	}
	if len(chunk) == 0 {
		return nil
	}

	p.table.Lock()

	unconsumed := chunk
	for len(unconsumed) > 0 {
		var err *ParseError
		unconsumed, err = p.step(unconsumed)
		if err != nil {
			p.err = err
			return err
		}
		if unconsumed == nil {
			break
		}
	}
	p.pos += uint64(len(chunk))
	return nil
}

// step advances the state machine as far as possible given unconsumed
// bytes (the remainder of the current Push's chunk not yet attributed to
// any phase), returning the bytes still unconsumed after this step (nil
// when the whole input has been used up and more data must be awaited)
// and a fatal error, if any.
func (p *Parser) step(unconsumed []byte) ([]byte, *ParseError) {
	switch p.phase {
	case PhasePreamble:
		return p.stepPreamble(unconsumed)
	case PhaseAfterDelimiter:
		return p.stepAfterDelimiter(unconsumed)
	case PhasePartHeaders:
		return p.stepPartHeaders(unconsumed)
	case PhasePartBody:
		return p.stepPartBody(unconsumed)
	case PhaseEpilogue:
		// remaining input is discarded silently (spec 4.3).
		return nil, nil
	default:
		return nil, newError(KindPushAfterDone, p.pos, nil)
	}
}

// firstMatch runs f.Feed(unconsumed) and, if any match was found,
// extracts the bytes safely attributable to the *old* phase (everything
// before the first match) and the raw bytes of unconsumed that follow the
// match end, which belong to whatever phase comes next. Any occurrence
// after the first match reported by this Feed call is ignored here: once
// a phase-transitioning match is found, f is abandoned and a fresh Finder
// is built for whatever phase follows, per multipart.go's package doc.
func firstMatch(f *finder.Finder, unconsumed []byte) (contentBeforeMatch, remainder []byte, found bool) {
	carryLenBefore := len(f.Carry())
	res := f.Feed(unconsumed)
	if len(res.Matches) == 0 {
		return res.Committable, nil, false
	}
	m0 := res.Matches[0]
	localEnd := m0.End - carryLenBefore
	return res.Committable[:m0.Start], unconsumed[localEnd:], true
}

func (p *Parser) stepPreamble(unconsumed []byte) ([]byte, *ParseError) {
	_, remainder, found := firstMatch(p.preambleFinder, unconsumed)
	if !found {
		return nil, nil
	}
	p.phase = PhaseAfterDelimiter
	p.afterDelimBuf = p.afterDelimBuf[:0]
	return remainder, nil
}

func (p *Parser) stepAfterDelimiter(unconsumed []byte) ([]byte, *ParseError) {
	need := 2 - len(p.afterDelimBuf)
	take := need
	if take > len(unconsumed) {
		take = len(unconsumed)
	}
	p.afterDelimBuf = append(p.afterDelimBuf, unconsumed[:take]...)
	rest := unconsumed[take:]

	if len(p.afterDelimBuf) < 2 {
		return nil, nil
	}

	marker := p.afterDelimBuf
	p.afterDelimBuf = nil

	switch {
	case marker[0] == '-' && marker[1] == '-':
		p.phase = PhaseEpilogue
		return rest, nil
	case marker[0] == '\r' && marker[1] == '\n':
		p.beginHeaders()
		return rest, nil
	default:
		return nil, newError(KindUnexpectedInputAfterDelimiter, p.pos, fmt.Errorf("unexpected bytes %q after delimiter", marker))
	}
}

func (p *Parser) beginHeaders() {
	p.phase = PhasePartHeaders
	p.headerFinder = finder.New(headerTerminator)
	p.headerAccum = p.headerAccum[:0]
}

func (p *Parser) stepPartHeaders(unconsumed []byte) ([]byte, *ParseError) {
	content, remainder, found := firstMatch(p.headerFinder, unconsumed)
	p.headerAccum = append(p.headerAccum, content...)
	if len(p.headerAccum) > p.maxHeaderBlock {
		return nil, newError(KindHeaderBlockTooLarge, p.pos, nil)
	}
	if !found {
		return nil, nil
	}

	block, err := header.Parse(p.headerAccum)
	if err != nil {
		return nil, classifyHeaderError(err, p.pos)
	}
	p.warnOnUnrecognizedCharset(block)

	part, ok, dispErr := p.dispatcher.Begin(block.Disposition.Name)
	if dispErr != nil {
		return nil, newError(KindMalformedHeaders, p.pos, dispErr)
	}
	if ok {
		if hpErr := part.HeadersParsed(block.Disposition); hpErr != nil {
			return nil, newError(KindMalformedHeaders, p.pos, hpErr)
		}
	}
	p.currentPart = part
	p.partRegistered = ok

	p.phase = PhasePartBody
	p.bodyFinder = finder.New(p.delim)

	return remainder, nil
}

func (p *Parser) stepPartBody(unconsumed []byte) ([]byte, *ParseError) {
	content, remainder, found := firstMatch(p.bodyFinder, unconsumed)
	if p.partRegistered && len(content) > 0 {
		if err := p.currentPart.Data(content); err != nil {
			return nil, newError(KindMalformedHeaders, p.pos, err)
		}
	}
	if !found {
		return nil, nil
	}

	if p.partRegistered {
		if err := p.currentPart.Finish(); err != nil {
			return nil, newError(KindMalformedHeaders, p.pos, err)
		}
	}
	p.currentPart = nil
	p.partRegistered = false

	p.phase = PhaseAfterDelimiter
	p.afterDelimBuf = p.afterDelimBuf[:0]

	return remainder, nil
}

// warnOnUnrecognizedCharset logs (if a logger is attached) when a part
// declares a charset that the IANA registry doesn't recognize. Purely
// advisory: the bytes are forwarded to the target unconverted either way,
// since charset conversion is out of scope.
func (p *Parser) warnOnUnrecognizedCharset(block *header.Block) {
	if p.logger == nil {
		return
	}
	charset, ok := block.Charset()
	if !ok {
		return
	}
	if err := header.ValidateCharsetName(charset); err != nil {
		p.logger.WithPart(block.Disposition.Name).Warn(err.Error())
	}
}

// classifyHeaderError maps internal/header's sentinel errors onto spec
// 7's taxonomy.
func classifyHeaderError(err error, pos uint64) *ParseError {
	if errors.Is(err, header.ErrMissingName) {
		return newError(KindMissingName, pos, err)
	}
	return newError(KindMalformedHeaders, pos, err)
}

// EOF signals end of input. It succeeds only if the closing delimiter has
// already been seen (phase Epilogue, moving to Done) or Done has already
// been reached (idempotent success, spec 8 property 5). Any other phase
// means the body was truncated before its closing delimiter.
func (p *Parser) EOF() error {
	if p.err != nil {
		return p.err
	}
	switch p.phase {
	case PhaseDone:
		return nil
	case PhaseEpilogue:
		p.phase = PhaseDone
		return nil
	default:
		p.err = newError(KindTruncated, p.pos, nil)
		return p.err
	}
}
