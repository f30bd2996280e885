// Package reconcile turns decoded telegrams into device and state
// objects. All store mutations go through one FIFO that runs a single
// task at a time.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/objects"
	"github.com/ammawel/cul_bridge/pkg/telegram"
)

const taskTimeout = 10 * time.Second

type Queue struct {
	store objects.Store
	roles objects.RoleTable
	log   *log.Entry

	mu      sync.Mutex
	cache   map[string]objects.Object
	tasks   []Task
	running bool
	idle    chan struct{}
	stats   Stats
}

// New creates an idle queue. roles may be nil.
func New(store objects.Store, roles objects.RoleTable) *Queue {
	if roles == nil {
		roles = objects.BuiltinRoles()
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		store: store,
		roles: roles,
		log:   log.WithField("component", "reconcile"),
		cache: make(map[string]objects.Object),
		idle:  idle,
	}
}

// Preload fills the entry cache from the objects already in the store
// so known devices are not created again.
func (q *Queue) Preload(ctx context.Context) error {
	existing, err := q.store.ListObjects(ctx, "")
	if err != nil {
		return fmt.Errorf("preload objects: %w", err)
	}
	q.mu.Lock()
	for _, obj := range existing {
		q.cache[obj.ID] = obj
	}
	q.mu.Unlock()
	q.log.Infof("Preloaded %d objects", len(existing))
	return nil
}

// Handle records raw as the latest raw traffic and, for recognized
// telegrams, enqueues the creations and state writes msg implies.
func (q *Queue) Handle(raw string, msg telegram.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.push(Task{Kind: TaskWrite, ID: objects.IDRawData, Value: raw, Ack: true})
	if !msg.Known() {
		return
	}

	deviceID := objects.DeviceID(string(msg.Protocol), msg.Address)
	if _, ok := q.cache[deviceID]; !ok {
		obj := deviceObject(deviceID, msg)
		q.cache[deviceID] = obj
		q.push(Task{Kind: TaskCreate, ID: deviceID, Object: obj})
	}

	for _, field := range sortedFields(msg.Data) {
		val := msg.Data[field]
		stateID := objects.StateID(deviceID, field)
		obj, ok := q.cache[stateID]
		if !ok {
			obj = objects.Object{
				ID:     stateID,
				Type:   objects.TypeState,
				Common: q.roles.StateCommon(msg.Device, field, val),
				Native: map[string]any{},
			}
			q.cache[stateID] = obj
			q.push(Task{Kind: TaskCreate, ID: stateID, Object: obj})
		}
		q.push(Task{Kind: TaskWrite, ID: stateID, Value: objects.Coerce(val, obj.Common.Type), Ack: true})
	}
}

// Write enqueues a single state write.
func (q *Queue) Write(id string, val any, ack bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.push(Task{Kind: TaskWrite, ID: id, Value: val, Ack: ack})
}

// Cached returns the cached entry for id.
func (q *Queue) Cached(id string) (objects.Object, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	obj, ok := q.cache[id]
	return obj, ok
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.stats
	st.Pending = len(q.tasks)
	return st
}

// WaitIdle blocks until every enqueued task has been processed.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// push appends t and starts the worker when the queue was idle.
// Callers hold q.mu.
func (q *Queue) push(t Task) {
	q.tasks = append(q.tasks, t)
	if q.running {
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	go q.run()
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks[0] = Task{}
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		err := q.execute(t)

		q.mu.Lock()
		switch {
		case err != nil:
			q.stats.Failed++
		case t.Kind == TaskCreate:
			q.stats.Created++
		default:
			q.stats.Written++
		}
		q.mu.Unlock()

		if err != nil {
			q.log.Errorf("%s %s failed: %v", t.Kind, t.ID, err)
		}
	}
}

func (q *Queue) execute(t Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	switch t.Kind {
	case TaskCreate:
		created, err := q.store.CreateObjectIfAbsent(ctx, t.ID, t.Object)
		if err != nil {
			return err
		}
		if created {
			q.log.Infof("Created %s %s", t.Object.Type, t.ID)
		}
		return nil
	default:
		return q.store.SetState(ctx, t.ID, t.Value, t.Ack)
	}
}

func deviceObject(id string, msg telegram.Message) objects.Object {
	native := map[string]any{
		"protocol": string(msg.Protocol),
		"address":  msg.Address,
		"device":   msg.Device,
	}
	for k, v := range msg.Native {
		native[k] = v
	}
	return objects.Object{
		ID:   id,
		Type: objects.TypeDevice,
		Common: objects.Common{
			Name: fmt.Sprintf("%s device %s", msg.Protocol, msg.Address),
			Read: true,
		},
		Native: native,
	}
}

func sortedFields(data map[string]any) []string {
	fields := make([]string, 0, len(data))
	for k := range data {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
