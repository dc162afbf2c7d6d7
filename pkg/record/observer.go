package record

// ObserverFunc receives synchronous change notifications for one property on
// one entity. Observers run depth first: a write performed inside an observer
// notifies before the outer notification returns, unless a change scope is
// open.
type ObserverFunc func(e *Entity, property string)

// ChangeScope groups several attribute writes into a single notification
// pass. Scopes nest; only the outermost End flushes. A property written more
// than once inside a scope notifies exactly once, in first-write order.
type ChangeScope struct {
	e      *Entity
	closed bool
}

// BeginChanges opens a change scope on the entity. Every scope must be
// closed with End, typically via defer.
func (e *Entity) BeginChanges() *ChangeScope {
	e.batchDepth++
	return &ChangeScope{e: e}
}

// End closes the scope. Closing the outermost scope delivers the coalesced
// notifications; closing an inner scope or closing twice does nothing more.
func (s *ChangeScope) End() {
	if s.closed {
		return
	}
	s.closed = true
	e := s.e
	if e.batchDepth == 0 {
		return
	}
	e.batchDepth--
	if e.batchDepth == 0 {
		e.flushPending()
	}
}

// AddObserver registers fn for change notifications on the given property.
// Registration order is delivery order.
func (e *Entity) AddObserver(property string, fn ObserverFunc) {
	if fn == nil {
		return
	}
	if e.observers == nil {
		e.observers = make(map[string][]ObserverFunc)
	}
	e.observers[property] = append(e.observers[property], fn)
}

// notifyProperty either delivers the notification synchronously or, with a
// change scope open, stages it for the outermost End.
func (e *Entity) notifyProperty(property string) {
	if e.batchDepth > 0 {
		if e.pendingSet == nil {
			e.pendingSet = make(map[string]struct{})
		}
		if _, staged := e.pendingSet[property]; staged {
			return
		}
		e.pendingSet[property] = struct{}{}
		e.pendingOrder = append(e.pendingOrder, property)
		return
	}
	e.deliver(property)
}

// flushPending delivers every staged notification in first-write order. The
// pending state is detached first so observers that open new scopes or write
// further attributes stage into a fresh batch.
func (e *Entity) flushPending() {
	order := e.pendingOrder
	e.pendingOrder = nil
	e.pendingSet = nil
	for _, property := range order {
		e.deliver(property)
	}
}

// deliver invokes the observer list for a property. The list is snapshotted
// so observers may register further observers without affecting the current
// pass.
func (e *Entity) deliver(property string) {
	fns := e.observers[property]
	if len(fns) == 0 {
		return
	}
	snapshot := append([]ObserverFunc(nil), fns...)
	for _, fn := range snapshot {
		fn(e, property)
	}
}
