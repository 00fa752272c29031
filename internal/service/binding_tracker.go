package service

import (
	"sort"
	"sync"
)

// 绑定事件类型
const (
	BindingEventBound    = "bound"
	BindingEventImported = "imported"
)

// BindingEvent 绑定变更事件
type BindingEvent struct {
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id"`
	BatchID  string `json:"batch_id"`
}

// DeviceBindings 设备的批次绑定快照
type DeviceBindings struct {
	DeviceID string   `json:"device_id"`
	Pending  []string `json:"pending"`
	Imported []string `json:"imported"`
}

type bindingSet struct {
	pending  map[string]struct{}
	imported map[string]struct{}
}

// BindingTracker 设备待导入/已导入批次的内存索引
type BindingTracker struct {
	mu        sync.Mutex
	devices   map[string]*bindingSet
	observers map[int]func(BindingEvent)
	nextID    int
}

// NewBindingTracker 创建绑定索引
func NewBindingTracker() *BindingTracker {
	return &BindingTracker{
		devices:   make(map[string]*bindingSet),
		observers: make(map[int]func(BindingEvent)),
	}
}

// Bind 将批次加入设备的待导入集合
func (t *BindingTracker) Bind(deviceID, batchID string) {
	if deviceID == "" || batchID == "" {
		return
	}
	t.mu.Lock()
	set := t.ensure(deviceID)
	if _, done := set.imported[batchID]; done {
		t.mu.Unlock()
		return
	}
	set.pending[batchID] = struct{}{}
	observers := t.observerList()
	t.mu.Unlock()
	notify(observers, BindingEvent{Kind: BindingEventBound, DeviceID: deviceID, BatchID: batchID})
}

// MarkImported 将批次从待导入移动到已导入
func (t *BindingTracker) MarkImported(deviceID, batchID string) {
	if deviceID == "" || batchID == "" {
		return
	}
	t.mu.Lock()
	set := t.ensure(deviceID)
	delete(set.pending, batchID)
	set.imported[batchID] = struct{}{}
	observers := t.observerList()
	t.mu.Unlock()
	notify(observers, BindingEvent{Kind: BindingEventImported, DeviceID: deviceID, BatchID: batchID})
}

// HasPending 设备是否仍有待导入批次
func (t *BindingTracker) HasPending(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.devices[deviceID]
	return ok && len(set.pending) > 0
}

// Snapshot 返回设备的绑定快照，批次号有序
func (t *BindingTracker) Snapshot(deviceID string) DeviceBindings {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := DeviceBindings{DeviceID: deviceID, Pending: []string{}, Imported: []string{}}
	set, ok := t.devices[deviceID]
	if !ok {
		return snapshot
	}
	snapshot.Pending = sortedKeys(set.pending)
	snapshot.Imported = sortedKeys(set.imported)
	return snapshot
}

// Subscribe 注册观察者，返回取消订阅函数。观察者在变更完成后同步调用。
func (t *BindingTracker) Subscribe(fn func(BindingEvent)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.observers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
		})
	}
}

func (t *BindingTracker) ensure(deviceID string) *bindingSet {
	set, ok := t.devices[deviceID]
	if !ok {
		set = &bindingSet{
			pending:  make(map[string]struct{}),
			imported: make(map[string]struct{}),
		}
		t.devices[deviceID] = set
	}
	return set
}

func (t *BindingTracker) observerList() []func(BindingEvent) {
	ids := make([]int, 0, len(t.observers))
	for id := range t.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	list := make([]func(BindingEvent), 0, len(ids))
	for _, id := range ids {
		list = append(list, t.observers[id])
	}
	return list
}

func notify(observers []func(BindingEvent), event BindingEvent) {
	for _, fn := range observers {
		fn(event)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
