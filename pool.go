package hwire

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const numPoolShards = 16

// poolKey identifies connections that are interchangeable.
type poolKey struct {
	scheme string
	host   string
	port   string
	proxy  string
	tls    string
}

func (k poolKey) String() string {
	s := k.scheme + "://" + k.host + ":" + k.port
	if k.proxy != "" {
		s += " via " + k.proxy
	}
	return s
}

func (k poolKey) hash() uint64 {
	h := xxhash.New()
	for _, part := range [...]string{k.scheme, k.host, k.port, k.proxy, k.tls} {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	// MaxIdlePerKey caps idle connections per destination. Zero disables
	// pooling.
	MaxIdlePerKey int
	// IdleTimeout discards connections idle for longer. Zero keeps them
	// until the pool is closed.
	IdleTimeout time.Duration
	// Registerer receives the pool metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Logger     Logger
}

// Pool is a keep-alive cache of idle connections. A Pool belongs to the
// caller that created it and may be shared by several clients.
type Pool struct {
	maxIdle     int
	idleTimeout time.Duration
	shards      [numPoolShards]poolShard
	metrics     *poolMetrics
	log         Logger
	closed      atomic.Bool
	now         func() time.Time
}

type poolShard struct {
	mu   sync.Mutex
	idle map[poolKey][]*Connection
}

// NewPool creates an empty pool.
func NewPool(opts PoolOptions) *Pool {
	p := &Pool{
		maxIdle:     opts.MaxIdlePerKey,
		idleTimeout: opts.IdleTimeout,
		metrics:     newPoolMetrics(opts.Registerer),
		log:         opts.Logger,
		now:         time.Now,
	}
	if p.log == nil {
		p.log = &disableLogger{}
	}
	for i := range p.shards {
		p.shards[i].idle = make(map[poolKey][]*Connection)
	}
	return p
}

func (p *Pool) shard(k poolKey) *poolShard {
	return &p.shards[k.hash()%numPoolShards]
}

// track wires metrics for a connection opened on behalf of the pool.
func (p *Pool) track(c *Connection) {
	p.metrics.Opened.Inc()
	c.onClose = func(*Connection) { p.metrics.Closed.Inc() }
}

// acquire returns the most recently released live connection for key,
// or nil when there is none.
func (p *Pool) acquire(key poolKey) *Connection {
	if p.closed.Load() {
		return nil
	}
	s := p.shard(key)
	var stale []*Connection
	var found *Connection
	now := p.now()
	s.mu.Lock()
	list := s.idle[key]
	for len(list) > 0 {
		c := list[len(list)-1]
		list[len(list)-1] = nil
		list = list[:len(list)-1]
		if p.idleTimeout > 0 && now.Sub(c.idleSince) > p.idleTimeout {
			stale = append(stale, c)
			continue
		}
		if !c.casState(connIdle, connActive) {
			stale = append(stale, c)
			continue
		}
		found = c
		break
	}
	if len(list) == 0 {
		delete(s.idle, key)
	} else {
		s.idle[key] = list
	}
	s.mu.Unlock()

	removed := len(stale)
	if found != nil {
		removed++
	}
	p.metrics.Idle.Sub(float64(removed))
	for _, c := range stale {
		p.log.Debugf("conn %s: discarding stale idle connection to %s", c.id, key)
		c.Close()
	}
	if found == nil {
		p.metrics.Acquires.WithLabelValues("miss").Inc()
		return nil
	}
	p.metrics.Acquires.WithLabelValues("hit").Inc()
	found.reused = true
	return found
}

// release hands a connection back after its exchange completed. It is
// idempotent: a connection that is already idle or closed is left alone.
// It reports whether the connection was pooled.
func (p *Pool) release(c *Connection) bool {
	if c.loadState() != connActive {
		p.metrics.Releases.WithLabelValues("duplicate").Inc()
		return false
	}
	if p.closed.Load() || p.maxIdle <= 0 || !c.reusable() {
		p.metrics.Releases.WithLabelValues("closed").Inc()
		c.Close()
		return false
	}
	s := p.shard(c.key)
	s.mu.Lock()
	if len(s.idle[c.key]) >= p.maxIdle {
		s.mu.Unlock()
		p.metrics.Releases.WithLabelValues("closed").Inc()
		c.Close()
		return false
	}
	if !c.casState(connActive, connIdle) {
		s.mu.Unlock()
		p.metrics.Releases.WithLabelValues("duplicate").Inc()
		return false
	}
	c.idleSince = p.now()
	s.idle[c.key] = append(s.idle[c.key], c)
	s.mu.Unlock()
	p.metrics.Idle.Inc()
	p.metrics.Releases.WithLabelValues("pooled").Inc()
	return true
}

// Len returns the number of idle connections.
func (p *Pool) Len() int {
	n := 0
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.Lock()
		for _, list := range s.idle {
			n += len(list)
		}
		s.mu.Unlock()
	}
	return n
}

// CloseIdle closes all idle connections.
func (p *Pool) CloseIdle() {
	var all []*Connection
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.Lock()
		for k, list := range s.idle {
			all = append(all, list...)
			delete(s.idle, k)
		}
		s.mu.Unlock()
	}
	p.metrics.Idle.Sub(float64(len(all)))
	for _, c := range all {
		c.Close()
	}
}

// Close closes idle connections and makes later releases close instead
// of pooling.
func (p *Pool) Close() error {
	p.closed.Store(true)
	p.CloseIdle()
	return nil
}
