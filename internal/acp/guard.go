// Package acp guards an Agent Client Protocol session between a local
// client and an agent hosted in the sandbox.
//
// The guard sits on the newline-delimited JSON-RPC stream in both
// directions. It strips host-executed capabilities (terminal, filesystem)
// from the client's initialize request and refuses any later call into
// those namespaces, answering the caller with a JSON-RPC error instead of
// forwarding. Lines that are not JSON objects pass through unchanged.
package acp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
)

// DefaultMaxMessageSize bounds a single framed message.
const DefaultMaxMessageSize = 8 << 20

const capabilitiesKey = "clientCapabilities"

// malformedMethod is recorded in place of a method name for rejected lines.
const malformedMethod = "(malformed)"

// State is the guard's view of the session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Active
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Direction names which side sent a message.
type Direction string

const (
	ClientToAgent Direction = "client_to_agent"
	AgentToClient Direction = "agent_to_client"
)

// Recorder receives security-relevant guard events.
type Recorder interface {
	RecordDenial(method string, family string, direction string) error
	RecordTrustBoundary(detail string) error
}

// Options configure a Guard.
type Options struct {
	Policy         Policy
	MaxMessageSize int
	Recorder       Recorder
}

// Guard filters one ACP session. Use New, then Wrap exactly once.
type Guard struct {
	policy   Policy
	maxSize  int
	recorder Recorder

	mu     sync.Mutex
	state  State
	initID json.RawMessage
	caps   CapabilitySet
	err    error

	toAgent  *lockedWriter
	toClient *lockedWriter

	agentInR  *io.PipeReader
	agentInW  *io.PipeWriter
	agentOutR *io.PipeReader
	agentOutW *io.PipeWriter
	outDone   chan struct{}

	clientIn   io.Reader
	clientDone chan struct{}
}

// New creates a guard.
func New(opts Options) *Guard {
	limit := opts.MaxMessageSize
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	return &Guard{
		policy:     opts.Policy,
		maxSize:    limit,
		recorder:   opts.Recorder,
		caps:       CapabilitySet{DelegateOverride: opts.Policy.DelegateOverride},
		outDone:    make(chan struct{}),
		clientDone: make(chan struct{}),
	}
}

// Wrap interposes the guard between a client (clientIn, clientOut) and the
// hosted agent. The agent's stdin should read from agentIn and its stdout
// should be written to agentOut. Closing agentOut flushes pending output
// to the client and terminates the session.
//
// The guard reads clientIn until EOF. When the session terminates first, a
// clientIn with SetReadDeadline (a pollable file, a net.Conn) is unblocked;
// any other reader keeps its goroutine parked in Read until the next input
// byte or EOF, and that input is discarded.
func (g *Guard) Wrap(clientIn io.Reader, clientOut io.Writer) (agentIn io.Reader, agentOut io.WriteCloser) {
	g.clientIn = clientIn
	g.agentInR, g.agentInW = io.Pipe()
	g.agentOutR, g.agentOutW = io.Pipe()
	g.toAgent = &lockedWriter{w: g.agentInW}
	g.toClient = &lockedWriter{w: clientOut}

	if g.policy.DelegateOverride {
		log.Warn("ACP delegate override enabled: terminal and filesystem capabilities are delegated to the hosted agent")
		g.record(func(r Recorder) error {
			return r.RecordTrustBoundary("acp delegate override enabled; capability masking and method denial disabled")
		})
	}

	go g.clientLoop(clientIn)
	go g.agentLoop()
	return g.agentInR, &agentWriter{g: g}
}

// State returns the current session state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Capabilities returns the partition computed from the initialize request.
func (g *Guard) Capabilities() CapabilitySet {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.caps
}

// Err returns the error that terminated the session, if any.
func (g *Guard) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Guard) clientLoop(clientIn io.Reader) {
	defer close(g.clientDone)
	r := bufio.NewReaderSize(clientIn, 64*1024)
	for {
		line, err := readLine(r, g.maxSize)
		if len(line) > 0 {
			if werr := g.fromClient(line); werr != nil {
				g.fail(werr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, errTooLarge) {
				g.fail(tooLarge(ClientToAgent))
				return
			}
			if err != io.EOF {
				log.Debug("reading ACP client stream", "error", err)
			}
			g.agentInW.Close()
			return
		}
	}
}

func (g *Guard) agentLoop() {
	defer close(g.outDone)
	r := bufio.NewReaderSize(g.agentOutR, 64*1024)
	for {
		line, err := readLine(r, g.maxSize)
		if len(line) > 0 {
			if werr := g.fromAgent(line); werr != nil {
				g.fail(werr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, errTooLarge) {
				g.fail(tooLarge(AgentToClient))
			}
			return
		}
	}
}

func (g *Guard) fromClient(line []byte) error {
	if g.policy.DelegateOverride {
		return g.toAgent.write(line)
	}
	msg, kind, perr := parse(line)
	switch kind {
	case plainLine:
		return g.toAgent.write(line)
	case malformedLine:
		return g.reject(perr, ClientToAgent, g.toClient)
	}
	if fam, blocked := g.blockedMethod(msg); blocked {
		return g.deny(msg, fam, ClientToAgent, g.toClient)
	}
	if msg.Method == methodInitialize {
		return g.initialize(line, msg)
	}
	return g.toAgent.write(line)
}

// initialize masks every initialize request, not only the first. A request
// whose capabilities cannot be rewritten is refused rather than forwarded.
func (g *Guard) initialize(line []byte, msg *message) error {
	rewritten, caps, err := g.rewriteInitialize(line)
	if err != nil {
		log.Warn("refusing ACP initialize with unreadable params", "error", err)
		if msg.isNotification() {
			return nil
		}
		return g.replyError(g.toClient, msg.ID, codeInvalidParams, "initialize params could not be checked: "+err.Error())
	}
	g.mu.Lock()
	if g.state == Uninitialized {
		g.state = Initializing
	}
	if msg.isRequest() {
		g.initID = append(json.RawMessage(nil), msg.ID...)
	}
	g.caps = caps
	g.mu.Unlock()
	if len(caps.Blocked) > 0 {
		log.Info("masked ACP client capabilities", "blocked", caps.Blocked, "allowed", caps.Allowed)
	}
	return g.toAgent.write(rewritten)
}

func (g *Guard) fromAgent(line []byte) error {
	if g.policy.DelegateOverride {
		return g.passThrough(line)
	}
	msg, kind, perr := parse(line)
	switch kind {
	case plainLine:
		return g.toClient.write(line)
	case malformedLine:
		return g.reject(perr, AgentToClient, g.toAgent)
	}
	if fam, blocked := g.blockedMethod(msg); blocked {
		return g.deny(msg, fam, AgentToClient, g.toAgent)
	}
	if msg.isResponse() {
		g.mu.Lock()
		if g.state == Initializing && sameID(msg.ID, g.initID) {
			g.state = Active
			log.Debug("ACP session active")
		}
		g.mu.Unlock()
	}
	return g.toClient.write(line)
}

// passThrough forwards agent output unchanged under the delegate override.
func (g *Guard) passThrough(line []byte) error {
	g.mu.Lock()
	if g.state == Uninitialized {
		g.state = Active
	}
	g.mu.Unlock()
	return g.toClient.write(line)
}

func (g *Guard) blockedMethod(msg *message) (Family, bool) {
	if msg.Method == "" {
		return "", false
	}
	fam, ok := methodFamily(msg.Method)
	if !ok || !g.policy.blocks(fam) {
		return "", false
	}
	return fam, true
}

// deny answers a blocked request on reply (the sender's side) and drops
// blocked notifications. Nothing reaches the other side.
func (g *Guard) deny(msg *message, fam Family, dir Direction, reply *lockedWriter) error {
	perr := fault.FromProtocol(&fault.ProtocolError{
		Kind:   fault.CapabilityBlocked,
		Method: msg.Method,
		Family: string(fam),
	})
	log.Warn("denied ACP method", "method", msg.Method, "family", string(fam), "direction", string(dir), "error", perr)
	g.record(func(r Recorder) error {
		return r.RecordDenial(msg.Method, string(fam), string(dir))
	})

	if msg.isNotification() {
		return nil
	}
	return g.replyError(reply, msg.ID, codeMethodNotFound,
		fmt.Sprintf("method %q is not available: %s capabilities are not delegated to the sandboxed agent", msg.Method, fam))
}

// reject drops a line that looks like JSON-RPC but is not exactly one
// well-formed message. The sender gets an invalid-request error with a null
// id, since no id can be trusted.
func (g *Guard) reject(cause error, dir Direction, reply *lockedWriter) error {
	log.Warn("rejected malformed ACP message", "direction", string(dir), "error", cause)
	g.record(func(r Recorder) error {
		return r.RecordDenial(malformedMethod, string(FamilyInvalid), string(dir))
	})
	return g.replyError(reply, json.RawMessage("null"), codeInvalidRequest, "malformed message rejected: "+cause.Error())
}

func (g *Guard) replyError(w *lockedWriter, id json.RawMessage, code int, text string) error {
	resp, err := json.Marshal(response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: text},
	})
	if err != nil {
		return err
	}
	return w.write(append(resp, '\n'))
}

// rewriteInitialize removes blocked capability families from the
// clientCapabilities object of an initialize request line.
func (g *Guard) rewriteInitialize(line []byte) ([]byte, CapabilitySet, error) {
	set := CapabilitySet{}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, set, err
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(env["params"], &params); err != nil {
		return nil, set, err
	}
	// A case variant would reach an agent that matches names loosely.
	for key := range params {
		if key != capabilitiesKey && strings.EqualFold(key, capabilitiesKey) {
			return nil, set, fmt.Errorf("params member %q shadows %q", key, capabilitiesKey)
		}
	}
	raw, ok := params[capabilitiesKey]
	if !ok {
		return line, set, nil
	}
	var caps map[string]json.RawMessage
	if err := json.Unmarshal(raw, &caps); err != nil {
		return nil, set, err
	}

	masked, set := maskCapabilities(caps, g.policy)
	if params[capabilitiesKey], ok = marshalRaw(masked); !ok {
		return nil, set, errors.New("encoding capabilities")
	}
	if env["params"], ok = marshalRaw(params); !ok {
		return nil, set, errors.New("encoding params")
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, set, err
	}
	return append(out, lineEnding(line)...), set, nil
}

func marshalRaw(v any) (json.RawMessage, bool) {
	b, err := json.Marshal(v)
	return b, err == nil
}

// fail terminates the session: both directions are closed with err. Errors
// after a normal termination are the loops noticing the closed pipes.
func (g *Guard) fail(err error) {
	g.mu.Lock()
	if g.state == Terminated && g.err == nil {
		g.mu.Unlock()
		log.Debug("ACP guard loop ended after session close", "error", err)
		return
	}
	if g.err == nil {
		g.err = err
	}
	g.state = Terminated
	g.mu.Unlock()

	log.Error("ACP guard terminated session", "error", err)
	g.agentInW.CloseWithError(err)
	g.agentOutR.CloseWithError(err)
	g.releaseClient()
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// releaseClient interrupts a clientLoop blocked reading clientIn, when the
// reader supports deadlines.
func (g *Guard) releaseClient() {
	select {
	case <-g.clientDone:
		return
	default:
	}
	d, ok := g.clientIn.(readDeadliner)
	if !ok {
		log.Debug("ACP client reader left blocked on read")
		return
	}
	if err := d.SetReadDeadline(time.Now()); err != nil {
		log.Debug("ACP client reader left blocked on read", "error", err)
	}
}

func (g *Guard) record(fn func(Recorder) error) {
	if g.recorder == nil {
		return
	}
	if err := fn(g.recorder); err != nil {
		log.Warn("recording ACP event failed", "error", err)
	}
}

func tooLarge(dir Direction) error {
	return fault.FromProtocol(&fault.ProtocolError{Kind: fault.MessageTooLarge, Family: string(dir)})
}

var errTooLarge = errors.New("message exceeds size limit")

// readLine returns the next newline-terminated line including the newline,
// or the unterminated tail at EOF.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return nil, errTooLarge
		}
		line = append(line, frag...)
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, err
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

// agentWriter is the agent's stdout as seen by the bridge.
type agentWriter struct {
	g    *Guard
	once sync.Once
}

func (a *agentWriter) Write(p []byte) (int, error) {
	return a.g.agentOutW.Write(p)
}

// Close ends the agent's output, waits until it has been forwarded, and
// terminates the session.
func (a *agentWriter) Close() error {
	a.once.Do(func() {
		a.g.agentOutW.Close()
		<-a.g.outDone
		a.g.agentInW.Close()
		a.g.mu.Lock()
		a.g.state = Terminated
		a.g.mu.Unlock()
		a.g.releaseClient()
	})
	return nil
}
