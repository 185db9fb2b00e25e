package mqtt

// pendingMsg is a serialized message waiting for the connection to return.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while disconnected.
// When full, the oldest message is overwritten. Not safe for concurrent use;
// RealClient guards it with its mutex.
type outbox struct {
	buf     []pendingMsg
	head    int // next write position
	count   int
	dropped uint64
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{buf: make([]pendingMsg, capacity)}
}

// push queues msg and reports whether the oldest message was dropped.
func (o *outbox) push(msg pendingMsg) bool {
	capacity := len(o.buf)
	o.buf[o.head] = msg
	o.head = (o.head + 1) % capacity
	if o.count == capacity {
		o.dropped++
		return true
	}
	o.count++
	return false
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() []pendingMsg {
	if o.count == 0 {
		return nil
	}
	capacity := len(o.buf)
	out := make([]pendingMsg, o.count)
	start := (o.head - o.count + capacity) % capacity
	for i := range out {
		out[i] = o.buf[(start+i)%capacity]
		o.buf[(start+i)%capacity] = pendingMsg{}
	}
	o.count = 0
	o.head = 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
