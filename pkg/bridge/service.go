// Package bridge connects a CUL session to the object store: it feeds
// telegrams into the reconciliation queue, maintains the info.* states
// and translates operator writes into CUL commands.
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/objectdb"
	"github.com/ammawel/cul_bridge/pkg/objects"
	"github.com/ammawel/cul_bridge/pkg/reconcile"
	"github.com/ammawel/cul_bridge/pkg/session"
	"github.com/ammawel/cul_bridge/pkg/telegram"
)

var drainTimeout = 15 * time.Second

type Bridge struct {
	sess   *session.Session
	store  objects.Store
	queue  *reconcile.Queue
	rawLog TelegramLog
	log    *log.Entry

	mu        sync.RWMutex
	version   string
	latest    string
	latestAt  time.Time
	telegrams int
	unknown   int
}

// New creates a bridge; rawLog may be nil.
func New(sess *session.Session, store objects.Store, roles objects.RoleTable, rawLog TelegramLog) *Bridge {
	return &Bridge{
		sess:   sess,
		store:  store,
		queue:  reconcile.New(store, roles),
		rawLog: rawLog,
		log:    log.WithField("component", "bridge"),
	}
}

func (b *Bridge) Queue() *reconcile.Queue {
	return b.queue
}

// Init creates the info objects, marks the bridge disconnected and
// preloads the reconciliation cache.
func (b *Bridge) Init(ctx context.Context) error {
	infos := []objects.Object{
		{ID: objects.IDConnection, Type: objects.TypeState, Common: objects.Common{
			Name: "If connected to CUL", Role: "indicator.connected", Type: objects.ValueBoolean, Read: true}},
		{ID: objects.IDRawData, Type: objects.TypeState, Common: objects.Common{
			Name: "Last received raw telegram", Role: "text", Type: objects.ValueString, Read: true}},
		{ID: objects.IDVersion, Type: objects.TypeState, Common: objects.Common{
			Name: "CUL firmware version", Role: "text", Type: objects.ValueString, Read: true}},
	}
	for _, obj := range infos {
		if _, err := b.store.CreateObjectIfAbsent(ctx, obj.ID, obj); err != nil {
			return fmt.Errorf("create %s: %w", obj.ID, err)
		}
	}
	if err := b.store.SetState(ctx, objects.IDConnection, false, true); err != nil {
		return fmt.Errorf("reset connection flag: %w", err)
	}
	return b.queue.Preload(ctx)
}

// Run starts the session and consumes its events until ctx is done or
// the session is closed. The session is closed on return.
func (b *Bridge) Run(ctx context.Context) error {
	b.sess.Start()
	defer b.sess.Close()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case ev := <-b.sess.Events():
			if ev.Type == session.EventClosed {
				b.drain()
				return nil
			}
			b.handle(ctx, ev)
		}
	}
}

// drain clears the connection flag and waits for the queue to flush, so
// the store can be closed once Run returns.
func (b *Bridge) drain() {
	b.queue.Write(objects.IDConnection, false, true)
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := b.queue.WaitIdle(ctx); err != nil {
		st := b.queue.Stats()
		b.log.Warnf("Queue not drained on shutdown, %d tasks pending: %v", st.Pending, err)
	}
}

func (b *Bridge) handle(ctx context.Context, ev session.Event) {
	switch ev.Type {
	case session.EventReady:
		b.queue.Write(objects.IDConnection, true, true)
	case session.EventError:
		b.queue.Write(objects.IDConnection, false, true)
	case session.EventReply:
		if version, ok := strings.CutPrefix(ev.Line, "V "); ok {
			b.mu.Lock()
			b.version = version
			b.mu.Unlock()
			b.log.Infof("CUL version: %s", version)
			b.queue.Write(objects.IDVersion, version, true)
		}
	case session.EventTelegram:
		b.record(ctx, ev)
		b.queue.Handle(ev.Line, ev.Message)
	}
}

func (b *Bridge) record(ctx context.Context, ev session.Event) {
	b.mu.Lock()
	b.latest = ev.Line
	b.latestAt = ev.Time
	b.telegrams++
	if !ev.Message.Known() {
		b.unknown++
	}
	b.mu.Unlock()

	if b.rawLog == nil {
		return
	}
	err := b.rawLog.InsertTelegram(ctx, &objectdb.RawTelegram{
		ReceivedAt: ev.Time,
		Protocol:   string(ev.Message.Protocol),
		Address:    ev.Message.Address,
		Line:       ev.Line,
	})
	if err != nil {
		b.log.Warnf("Could not log raw telegram: %v", err)
	}
}

func (b *Bridge) Status() Status {
	qs := b.queue.Stats()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{
		State:      b.sess.State().String(),
		Connected:  b.sess.Ready(),
		Version:    b.version,
		LatestRaw:  b.latest,
		LatestAt:   b.latestAt,
		Telegrams:  b.telegrams,
		Unknown:    b.unknown,
		Pending:    qs.Pending,
		StoreFails: qs.Failed,
	}
}

// Latest returns the most recent raw line.
func (b *Bridge) Latest() (string, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.latestAt
}

func (b *Bridge) Command(c Command) error {
	b.log.Infof("Sending to CUL: %s %s %s %s", c.Protocol, c.Housecode, c.Address, c.Value)
	ready := b.sess.Ready()
	b.sess.Cmd(c.Protocol, c.Housecode, c.Address, c.Value)
	if !ready {
		return ErrNotReady
	}
	return nil
}

func (b *Bridge) Raw(command string) error {
	b.log.Infof("Sending raw command to CUL: %s", command)
	ready := b.sess.Ready()
	b.sess.Write(command)
	if !ready {
		return ErrNotReady
	}
	return nil
}

// SetState handles an operator write to a device state: the value is
// stored unacknowledged and sent to the device.
func (b *Bridge) SetState(id string, val any) error {
	c, err := CommandFor(id, val)
	if err != nil {
		return err
	}
	b.queue.Write(id, val, false)
	return b.Command(c)
}

// CommandFor maps a write to "{protocol}.{address}.{field}" to a device
// command. A 6 digit FS20 address splits into housecode and button.
func CommandFor(id string, val any) (Command, error) {
	protocol, address, _, ok := objects.SplitStateID(id)
	if !ok || protocol == string(telegram.ProtocolUnknown) || protocol == "info" || protocol == "meta" {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidStateID, id)
	}
	c := Command{Protocol: protocol, Housecode: address, Value: FormatValue(val)}
	if protocol == string(telegram.ProtocolFS20) && len(address) == 6 {
		c.Housecode, c.Address = address[:4], address[4:]
	}
	return c, nil
}

// FormatValue renders an operator value as command text. Booleans map
// to the FS20 on/off codes, whole numbers below 256 to two hex digits.
func FormatValue(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		if v {
			return "11"
		}
		return "00"
	case float64:
		if v >= 0 && v < 256 && v == float64(int(v)) {
			return fmt.Sprintf("%02X", int(v))
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		if v >= 0 && v < 256 {
			return fmt.Sprintf("%02X", v)
		}
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
