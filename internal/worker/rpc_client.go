package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// rpcClient speaks line-delimited JSON-RPC 2.0 over a worker process's
// stdin/stdout. Every outstanding request is
// tracked by a monotonic ID so responses can arrive out of order;
// lines that are not JSON or carry no ID are treated as worker log
// output and forwarded to the logger. A response whose ID has no
// pending request is discarded.
type rpcClient struct {
	stdin   io.Writer
	writeMu sync.Mutex
	nextID  int64

	mu      sync.Mutex
	pending map[int64]chan rpcResult
	closed  bool

	logger *zap.Logger
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

func newRPCClient(stdin io.Writer, stdout io.Reader, logger *zap.Logger) *rpcClient {
	c := &rpcClient{
		stdin:   stdin,
		pending: make(map[int64]chan rpcResult),
		logger:  logger,
	}
	go c.readLoop(stdout)
	return c
}

// readLoop consumes stdout one line at a time for the lifetime of the
// process. A line that is not JSON or has no ID is logged as worker
// output; a response whose ID matches no pending request is dropped.
func (c *rpcClient) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp struct {
			ID     *int64          `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
			c.logger.Debug("worker stdout", zap.ByteString("line", line))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			continue
		}

		if resp.Error != nil {
			ch <- rpcResult{err: fmt.Errorf("worker rpc error: %s", resp.Error.Message)}
		} else {
			ch <- rpcResult{result: resp.Result}
		}
		close(ch)
	}

	c.failAllPending(fmt.Errorf("worker process exited"))
}

// failAllPending is invoked when the worker process's stdout closes.
// Every outstanding request fails immediately rather than hanging
// until its own timeout.
func (c *rpcClient) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, ch := range c.pending {
		ch <- rpcResult{err: err}
		close(ch)
		delete(c.pending, id)
	}
}

// Call sends a request and blocks until its response arrives, ctx is
// canceled, or the process exits. result is unmarshaled into out when
// non-nil.
func (c *rpcClient) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := atomic.AddInt64(&c.nextID, 1)
	ch := make(chan rpcResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("worker process exited")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := struct {
		JSONRPC string      `json:"jsonrpc"`
		ID      int64       `json:"id"`
		Method  string      `json:"method"`
		Params  interface{} `json:"params,omitempty"`
	}{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	line, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)
		return fmt.Errorf("encode rpc request: %w", err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_, err = c.stdin.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		return fmt.Errorf("write rpc request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if out == nil || res.result == nil {
			return nil
		}
		return json.Unmarshal(res.result, out)
	}
}

func (c *rpcClient) removePending(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// CallWithTimeout wraps Call with a per-request deadline, grounded in
// the same bounded-wait idiom the task coordinator uses for sub-task
// polling.
func (c *rpcClient) CallWithTimeout(parent context.Context, timeout time.Duration, method string, params, out interface{}) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return c.Call(ctx, method, params, out)
}
