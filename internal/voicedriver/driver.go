// Package voicedriver ties together the components of §2 into the public
// Configuration & Control plane (§2 "~5%"): Join/Leave/Play and friends.
// Everything else (input, track, events, jitter, mixer, scheduler, netio,
// connfsm, disposer, workerpool, receive) is a leaf package this one
// wires, matching the teacher's internal/voice package acting as the
// public-facing assembly point over its own leaf types.
package voicedriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/voxd/internal/config"
	"github.com/Raikerian/voxd/internal/voicedriver/codec"
	"github.com/Raikerian/voxd/internal/voicedriver/connfsm"
	"github.com/Raikerian/voxd/internal/voicedriver/disposer"
	"github.com/Raikerian/voxd/internal/voicedriver/events"
	"github.com/Raikerian/voxd/internal/voicedriver/input"
	"github.com/Raikerian/voxd/internal/voicedriver/mixer"
	"github.com/Raikerian/voxd/internal/voicedriver/netio"
	"github.com/Raikerian/voxd/internal/voicedriver/receive"
	"github.com/Raikerian/voxd/internal/voicedriver/scheduler"
	"github.com/Raikerian/voxd/internal/voicedriver/seal"
	"github.com/Raikerian/voxd/internal/voicedriver/track"
	"github.com/Raikerian/voxd/internal/voicedriver/workerpool"
	"github.com/Raikerian/voxd/pkg/util"
)

// maxRtpPacketBytes bounds one UDP read in runReceiveLoop; Discord voice
// RTP packets never approach typical network MTUs.
const maxRtpPacketBytes = 1500

// Gateway is the narrow collaborator surface the Driver needs from the
// external gateway/signalling layer (§6), kept as an interface here so
// this package doesn't import arikawa directly.
type Gateway interface {
	Join(ctx context.Context, guildID GuildID, channelID ChannelID, selfUserID UserID, timeout time.Duration) (ConnectionInfo, error)
	Leave(ctx context.Context, guildID GuildID) error
}

// Driver is the top-level voice driver (§2). One Driver instance serves
// every guild the bot has joined voice in.
type Driver struct {
	cfg    config.VoiceConfig
	logger *zap.Logger
	gw     Gateway

	pool     *workerpool.Pool
	disposer *disposer.Disposer
	idle     *scheduler.IdleCollector
	schedCfg scheduler.Config

	workersMu sync.Mutex
	workers   []*scheduler.Worker

	mu    sync.Mutex
	calls map[GuildID]*call
}

// call is one guild's live voice session: the FSM, transport, Mixer, and
// Track set the Scheduler drives as a single scheduler.Runnable. Newly
// joined calls start parked on the Idle Collector (§4.4 "new Mixers start
// idle") and are promoted onto a Worker once their first track is added.
type call struct {
	mu      sync.Mutex
	guildID GuildID
	info    ConnectionInfo
	fsm     *connfsm.Machine
	ws      *netio.VoiceWS
	udp     *netio.VoiceUDP
	mx      *mixer.Mixer
	router  *receive.Router
	tracks  map[string]*track.Track
	sources map[string]*trackSource
	ssrc    uint32
	events  *events.Store

	heartbeatInterval time.Duration

	r       *runnable
	stop    chan struct{}
	hbNonce int64
}

// New builds a Driver. workerCount sizes the initial Worker Thread pool
// (§4.4); additional workers are created on demand by promotion.
func New(cfg config.VoiceConfig, logger *zap.Logger, gw Gateway, workerCount int) *Driver {
	idle := scheduler.NewIdleCollector()
	d := &Driver{
		cfg:      cfg,
		logger:   logger,
		gw:       gw,
		pool:     workerpool.New(8),
		disposer: disposer.New(logger, 64),
		idle:     idle,
		calls:    make(map[GuildID]*call),
	}
	d.schedCfg = scheduler.Config{
		LiveTracksPerThread: cfg.LiveTracksPerThread,
		CostCeiling:         cfg.WorkerTickBudget,
		WorkBudget:          cfg.WorkerTickBudget,
	}
	for i := 0; i < workerCount; i++ {
		d.workers = append(d.workers, scheduler.NewWorker(i, d.schedCfg, idle))
	}
	return d
}

// Start launches every Worker Thread's tick loop (§5 "Mixing runs on
// dedicated OS threads").
func (d *Driver) Start() {
	d.workersMu.Lock()
	workers := append([]*scheduler.Worker(nil), d.workers...)
	d.workersMu.Unlock()
	for _, w := range workers {
		go w.Run(time.Duration(codec.FrameDurationMS) * time.Millisecond)
	}
}

// Shutdown cooperatively tears every call down and stops the workers and
// background threads (§5 "driver shutdown is cooperative").
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	guildIDs := make([]GuildID, 0, len(d.calls))
	for id := range d.calls {
		guildIDs = append(guildIDs, id)
	}
	d.mu.Unlock()

	for _, id := range guildIDs {
		_ = d.Leave(ctx, id)
	}

	d.workersMu.Lock()
	workers := append([]*scheduler.Worker(nil), d.workers...)
	d.workersMu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
	d.pool.Close()
	return d.disposer.Shutdown(ctx)
}

// Join negotiates a ConnectionInfo via the Gateway, runs the Connection
// FSM's handshake/discovery/select-protocol/ready sequence (§4.5), and
// installs a new Mixer/Router for the guild.
func (d *Driver) Join(ctx context.Context, guildID GuildID, channelID ChannelID, selfUserID UserID) error {
	info, err := d.gw.Join(ctx, guildID, channelID, selfUserID, 10*time.Second)
	if err != nil {
		return fmt.Errorf("voicedriver: join: %w", err)
	}

	c := &call{
		guildID: guildID,
		info:    info,
		fsm:     connfsm.New(10 * time.Second),
		tracks:  make(map[string]*track.Track),
		sources: make(map[string]*trackSource),
		stop:    make(chan struct{}),
	}
	if !c.fsm.BeginHandshake() {
		return ErrAlreadyConnected
	}

	ws, readyData, heartbeatInterval, err := d.handshake(ctx, info)
	if err != nil {
		return err
	}
	c.ws = ws
	c.ssrc = readyData.SSRC
	c.fsm.ReachDiscovering()

	udp, err := netio.DialVoiceUDP(readyData.IP, readyData.Port)
	if err != nil {
		return fmt.Errorf("voicedriver: dial udp: %w", ErrIPDiscoveryFailed)
	}
	c.udp = udp

	externalAddr, externalPort, err := udp.Discover(readyData.SSRC, 10*time.Second)
	if err != nil {
		return fmt.Errorf("voicedriver: %w: %v", ErrIPDiscoveryFailed, err)
	}
	c.fsm.ReachSelectingProtocol()

	mode := string(d.cfg.CryptoMode)
	if err := ws.Send(netio.OpSelectProtocol, netio.SelectProtocolData{
		Protocol: "udp",
		Data:     netio.SelectProtocolInnerData{Address: externalAddr, Port: externalPort, Mode: mode},
	}); err != nil {
		return fmt.Errorf("voicedriver: select protocol: %w", err)
	}

	sessionDesc, err := d.awaitSessionDescription(ws)
	if err != nil {
		return err
	}
	c.fsm.ReachReady()

	sealMode, err := parseCryptoMode(sessionDesc.Mode)
	if err != nil {
		return err
	}
	sealer, err := seal.NewSealer(sealMode, sessionDesc.SecretKey)
	if err != nil {
		return fmt.Errorf("voicedriver: %w", ErrBadSessionDesc)
	}

	enc, err := codec.NewEncoder(d.cfg.Bitrate)
	if err != nil {
		return fmt.Errorf("voicedriver: new encoder: %w", err)
	}
	c.mx = mixer.New(mixer.Config{
		Softclip:                   d.cfg.Softclip,
		MixAndReencodeWhenOneTrack: d.cfg.MixAndReencodeWhenOneTrack,
		Bitrate:                    d.cfg.Bitrate,
	}, enc, sealer, readyData.SSRC)

	router, err := receive.NewRouter(receive.Config{
		PlayoutBufferLength: d.cfg.PlayoutBufferLength,
		PlayoutSpikeLength:  d.cfg.PlayoutSpikeLength,
		SilenceTimeoutTicks: d.cfg.SilenceTimeoutTicks,
		DecodeEnabled:       d.cfg.DecodeMode == config.DecodeModeDecode,
	}, sealer)
	if err != nil {
		return fmt.Errorf("voicedriver: new receive router: %w", err)
	}
	c.router = router
	c.events = events.New()
	router.Events = c.events
	c.heartbeatInterval = heartbeatInterval
	c.r = &runnable{c: c}
	d.idle.Park(c.r) // new calls start idle until AddTrack promotes them (§4.4)

	d.mu.Lock()
	d.calls[guildID] = c
	d.mu.Unlock()

	c.events.Fire(events.KindDriverConnect, nil)
	go d.runSignalLoop(c, heartbeatInterval)
	go d.runReceiveLoop(c)

	return nil
}

// runReceiveLoop is the Receive Path's feed (§4.1, §3 "SsrcState"): it
// reads inbound RTP packets off the UDP socket for this call's whole
// lifetime and routes each through the Router, which opens the SRTP seal
// and inserts the packet into the sending SSRC's jitter buffer. Without
// this loop the buffers runnable.Tick steps every tick stay empty and
// RtpPacket/VoiceTick never fire. It exits once the UDP socket is closed
// by Leave's disposer handoff.
func (d *Driver) runReceiveLoop(c *call) {
	buf := make([]byte, maxRtpPacketBytes)
	for {
		n, err := c.udp.Read(buf)
		if err != nil {
			return
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		if err := c.router.HandlePacket(packet); err != nil {
			d.logger.Debug("voicedriver: dropped inbound rtp packet", zap.Error(err))
		}
	}
}

// wsFrame pairs a received Payload with the error that ended the read loop,
// so runSignalLoop can classify a close code without the netio package
// needing to know about connfsm.
type wsFrame struct {
	payload netio.Payload
	err     error
}

// runSignalLoop owns one call's voice WebSocket for its whole lifetime
// past the handshake: it heartbeats on Discord's interval, and translates
// OpSpeaking/OpClientDisconnect frames into SpeakingStateUpdate/
// ClientDisconnect events (§4.7, §6). A run of missed heartbeat acks trips
// heartbeatDebounce, which is treated the same as a resumable close.
func (d *Driver) runSignalLoop(c *call, heartbeatInterval time.Duration) {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5 * time.Second
	}

	heartbeatDebounce := util.NewDebouncer(heartbeatInterval * 3)
	defer heartbeatDebounce.Stop()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	frames := make(chan wsFrame, 1)
	go func() {
		for {
			payload, err := c.ws.Receive()
			frames <- wsFrame{payload: payload, err: err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			nonce := atomic.AddInt64(&c.hbNonce, 1)
			_ = c.ws.Send(netio.OpHeartbeat, netio.HeartbeatPayload{Nonce: nonce})

		case <-heartbeatDebounce.C():
			d.handleSignalClose(c, connfsm.CloseResumable)
			return

		case frame := <-frames:
			if frame.err != nil {
				code, _ := netio.CloseCode(frame.err)
				d.handleSignalClose(c, connfsm.ClassifyClose(code))
				return
			}
			switch frame.payload.Op {
			case netio.OpHeartbeatAck:
				heartbeatDebounce.Reset()
			case netio.OpSpeaking:
				var speaking netio.SpeakingData
				if err := json.Unmarshal(frame.payload.Data, &speaking); err == nil {
					if speaking.UserID != "" {
						if uid, perr := strconv.ParseUint(speaking.UserID, 10, 64); perr == nil {
							c.router.BindUser(speaking.SSRC, uid)
						}
					}
					c.events.Fire(events.KindSpeakingStateUpdate, speaking)
				}
			case netio.OpClientDisconnect:
				var disc netio.ClientDisconnectData
				if err := json.Unmarshal(frame.payload.Data, &disc); err == nil {
					c.events.Fire(events.KindClientDisconnect, disc)
				}
			}

		case <-c.stop:
			return
		}
	}
}

// handleSignalClose applies reason to the FSM and either starts a Resume
// attempt or tears the call down, firing the matching driver-level event
// (§4.5, §6 close codes).
func (d *Driver) handleSignalClose(c *call, reason connfsm.CloseReason) {
	if reason == connfsm.CloseResumable && c.fsm.BeginResume(0) {
		go d.attemptResume(c)
		return
	}
	c.fsm.Disconnect()
	c.events.Fire(events.KindDriverDisconnect, nil)
}

// attemptResume drives the Resuming state (§4.5 "re-open WS and send
// Resume; on success return to Ready preserving SSRC and keys"): it
// re-dials the voice WS, sends OpResume, and waits for OpResumed, backing
// off between attempts with the FSM's capped exponential policy. It keeps
// retrying until it succeeds or the call is torn down by Leave.
func (d *Driver) attemptResume(c *call) {
	for {
		select {
		case <-c.stop:
			return
		case <-time.After(c.fsm.NextBackoff()):
		}

		ws, err := netio.DialVoiceWS(context.Background(), c.info.Endpoint)
		if err != nil {
			d.logger.Warn("voicedriver: resume dial failed", zap.Error(err))
			continue
		}

		if err := ws.Send(netio.OpResume, netio.ResumeData{
			ServerID:  fmt.Sprintf("%d", c.info.GuildID),
			SessionID: c.info.SessionID,
			Token:     c.info.Token,
		}); err != nil {
			_ = ws.Close()
			d.logger.Warn("voicedriver: resume send failed", zap.Error(err))
			continue
		}

		if !d.awaitResumed(ws) {
			_ = ws.Close()
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.fsm.ReachReady()
		c.events.Fire(events.KindDriverReconnect, nil)
		go d.runSignalLoop(c, c.heartbeatInterval)
		return
	}
}

// awaitResumed reads frames off ws until it sees OpResumed (the resume
// succeeded) or the connection errors out (it didn't), mirroring
// handshake's read-until-the-opcode-we-want loop.
func (d *Driver) awaitResumed(ws *netio.VoiceWS) bool {
	for {
		payload, err := ws.Receive()
		if err != nil {
			return false
		}
		if payload.Op == netio.OpResumed {
			return true
		}
	}
}

// Leave tears a guild's call down: stops every track, routes sockets
// through the Disposer, and notifies the Gateway (§5, §4.8). No silence
// frames are sent to drain the Mixer before the sockets close.
func (d *Driver) Leave(ctx context.Context, guildID GuildID) error {
	d.mu.Lock()
	c, ok := d.calls[guildID]
	if ok {
		delete(d.calls, guildID)
	}
	d.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	c.fsm.Disconnect()
	close(c.stop) // stop runSignalLoop
	if c.events != nil {
		c.events.Fire(events.KindDriverDisconnect, nil)
	}
	_, _ = d.idle.Take(c.r.ID()) // drop it if it never got promoted off the Idle Collector

	c.mu.Lock()
	for _, t := range c.tracks {
		_ = t.Handle().Stop()
	}
	c.mu.Unlock()
	// if c.r was live on a Worker, the next tick sees no Playing tracks and
	// demotes it straight back to the Idle Collector, where it is orphaned
	// and garbage-collected once this call drops out of scope.

	if c.ws != nil {
		d.disposer.Queue(disposer.DisposableFunc(func() error { return c.ws.Close() }))
	}
	if c.udp != nil {
		d.disposer.Queue(disposer.DisposableFunc(func() error { return c.udp.Close() }))
	}
	return d.gw.Leave(ctx, guildID)
}

// AddTrack registers a new Track under guildID's call, wired to pcm and/or
// opus (whichever the input supports, §4.1), and returns a Handle for
// Play/Pause/Stop/etc (§4.2). Adding a call's first track promotes it from
// the Idle Collector onto a Worker Thread (§4.4 "Idle -> Worker").
func (d *Driver) AddTrack(guildID GuildID, id string, pcm input.PCM, opus input.Opus) (track.Handle, error) {
	d.mu.Lock()
	c, ok := d.calls[guildID]
	d.mu.Unlock()
	if !ok {
		return track.Handle{}, ErrNotConnected
	}

	t := track.New()
	c.mu.Lock()
	c.tracks[id] = t
	c.sources[id] = newTrackSource(t, pcm, opus, d.cfg.StarvingTicks)
	c.mu.Unlock()

	d.prepareTrack(t, pcm, opus)
	d.promote(c)
	return t.Handle(), nil
}

// prepareTrack drives Preparing -> Playable off the audio deadline path
// through the Thread Pool (§4.1, §4.9 "lazy Input creation, seeks, header
// parsing"): any Lazy pcm/opus source is Created here, and MarkPlayable
// runs only once that blocking work finishes, so a plain AddTrack then
// Play never stalls behind StatePreparing.
func (d *Driver) prepareTrack(t *track.Track, pcm input.PCM, opus input.Opus) {
	result := d.pool.Submit(func(ctx context.Context) (any, error) {
		if lazy, ok := pcm.(input.Lazy); ok {
			if _, err := lazy.Create(); err != nil {
				return nil, fmt.Errorf("voicedriver: create lazy pcm input: %w", err)
			}
		}
		if lazy, ok := opus.(input.Lazy); ok {
			if _, err := lazy.Create(); err != nil {
				return nil, fmt.Errorf("voicedriver: create lazy opus input: %w", err)
			}
		}
		return nil, nil
	})

	go func() {
		r := <-result
		if r.Err != nil {
			t.Fail(r.Err)
			return
		}
		t.MarkPlayable()
	}()
}

// Events returns guildID's call-level event Store (DriverConnect,
// DriverReconnect, DriverDisconnect, SpeakingStateUpdate, ClientDisconnect,
// RtpPacket, VoiceTick — §4.7 "Core"), for a caller to subscribe handlers
// to via Store.On.
func (d *Driver) Events(guildID GuildID) (*events.Store, error) {
	d.mu.Lock()
	c, ok := d.calls[guildID]
	d.mu.Unlock()
	if !ok {
		return nil, ErrNotConnected
	}
	return c.events, nil
}

// promote moves c's runnable off the Idle Collector and onto whichever
// Worker has spare population and an acceptable last-tick cost (§4.4's
// promotion rule), creating a new Worker if none qualifies. A no-op if c
// is already live on a Worker.
func (d *Driver) promote(c *call) {
	r, ok := d.idle.Take(c.r.ID())
	if !ok {
		return
	}

	d.workersMu.Lock()
	statuses := make([]scheduler.WorkerStatus, len(d.workers))
	for i, w := range d.workers {
		statuses[i] = w.Status()
	}
	target := scheduler.ChoosePromotionTarget(statuses, d.schedCfg)
	var worker *scheduler.Worker
	if target == -1 {
		worker = scheduler.NewWorker(len(d.workers), d.schedCfg, d.idle)
		d.workers = append(d.workers, worker)
		go worker.Run(time.Duration(codec.FrameDurationMS) * time.Millisecond)
	} else {
		worker = d.workers[target]
	}
	d.workersMu.Unlock()

	worker.Accept(r)
}

// handshake drives Handshaking: dial the WS, send Identify, await Ready
// (§4.5). It also captures the Hello heartbeat interval so the caller can
// start the keepalive loop.
func (d *Driver) handshake(ctx context.Context, info ConnectionInfo) (*netio.VoiceWS, netio.ReadyData, time.Duration, error) {
	ws, err := netio.DialVoiceWS(ctx, info.Endpoint)
	if err != nil {
		return nil, netio.ReadyData{}, 0, fmt.Errorf("voicedriver: %w: %v", ErrHandshakeTimeout, err)
	}

	if err := ws.Send(netio.OpIdentify, netio.IdentifyData{
		ServerID:  fmt.Sprintf("%d", info.GuildID),
		UserID:    fmt.Sprintf("%d", info.UserID),
		SessionID: info.SessionID,
		Token:     info.Token,
	}); err != nil {
		return nil, netio.ReadyData{}, 0, fmt.Errorf("voicedriver: send identify: %w", err)
	}

	var heartbeatInterval time.Duration
	for {
		payload, err := ws.Receive()
		if err != nil {
			return nil, netio.ReadyData{}, 0, fmt.Errorf("voicedriver: %w: %v", ErrHandshakeTimeout, err)
		}
		switch payload.Op {
		case netio.OpHello:
			var hello netio.HelloData
			if err := json.Unmarshal(payload.Data, &hello); err == nil {
				heartbeatInterval = time.Duration(hello.HeartbeatIntervalMS * float64(time.Millisecond))
			}
		case netio.OpReady:
			var ready netio.ReadyData
			if err := json.Unmarshal(payload.Data, &ready); err != nil {
				return nil, netio.ReadyData{}, 0, fmt.Errorf("voicedriver: decode ready: %w", err)
			}
			return ws, ready, heartbeatInterval, nil
		}
	}
}

func (d *Driver) awaitSessionDescription(ws *netio.VoiceWS) (netio.SessionDescriptionData, error) {
	for {
		payload, err := ws.Receive()
		if err != nil {
			return netio.SessionDescriptionData{}, fmt.Errorf("voicedriver: %w", ErrBadSessionDesc)
		}
		if payload.Op != netio.OpSessionDescription {
			continue
		}
		var desc netio.SessionDescriptionData
		if err := json.Unmarshal(payload.Data, &desc); err != nil {
			return netio.SessionDescriptionData{}, fmt.Errorf("voicedriver: decode session description: %w", err)
		}
		return desc, nil
	}
}

func parseCryptoMode(wire string) (seal.Mode, error) {
	switch config.CryptoMode(wire) {
	case config.CryptoModeXChaCha20Poly1305RTPSize:
		return seal.ModeXChaCha20Poly1305RTPSize, nil
	case config.CryptoModeXSalsa20Poly1305Lite:
		return seal.ModeXSalsa20Poly1305Lite, nil
	case config.CryptoModeXSalsa20Poly1305Suffix:
		return seal.ModeXSalsa20Poly1305Suffix, nil
	default:
		return 0, fmt.Errorf("voicedriver: %w: unknown crypto mode %q", ErrBadSessionDesc, wire)
	}
}
