package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Remedy.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Remedy.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Remedy.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trigger starts a remediation cycle for a workspace.
func (c *Client) Trigger(workspace string, feedback []FeedbackItem) (*TriggerResponse, error) {
	var resp TriggerResponse
	req := TriggerRequest{Workspace: workspace, Feedback: feedback}
	if err := c.client.Call("Remedy.Trigger", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns queue entries optionally filtered by classes.
func (c *Client) QueueList(classes []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Classes: classes}
	if err := c.client.Call("Remedy.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns details for a single queue entry.
func (c *Client) QueueDescribe(id string) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	req := QueueDescribeRequest{ID: id}
	if err := c.client.Call("Remedy.QueueDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry resets a failed entry back to pending.
func (c *Client) QueueRetry(id string) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	req := QueueRetryRequest{ID: id}
	if err := c.client.Call("Remedy.QueueRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueCancel removes a pending or retrying entry.
func (c *Client) QueueCancel(id string) (*QueueCancelResponse, error) {
	var resp QueueCancelResponse
	req := QueueCancelRequest{ID: id}
	if err := c.client.Call("Remedy.QueueCancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueuePrune trims completed entries beyond the retention cap.
func (c *Client) QueuePrune(keep int) (*QueuePruneResponse, error) {
	var resp QueuePruneResponse
	req := QueuePruneRequest{Keep: keep}
	if err := c.client.Call("Remedy.QueuePrune", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Remedy.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WorkspaceList returns every tracked workspace.
func (c *Client) WorkspaceList() (*WorkspaceListResponse, error) {
	var resp WorkspaceListResponse
	if err := c.client.Call("Remedy.WorkspaceList", WorkspaceListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WorkspaceShow returns one workspace by name.
func (c *Client) WorkspaceShow(name string) (*WorkspaceShowResponse, error) {
	var resp WorkspaceShowResponse
	req := WorkspaceShowRequest{Name: name}
	if err := c.client.Call("Remedy.WorkspaceShow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Approve promotes a beta workspace to in_review.
func (c *Client) Approve(workspace string) (*ApproveResponse, error) {
	var resp ApproveResponse
	req := ApproveRequest{Workspace: workspace}
	if err := c.client.Call("Remedy.Approve", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify promotes an in_review workspace to verified.
func (c *Client) Verify(workspace string) (*VerifyResponse, error) {
	var resp VerifyResponse
	req := VerifyRequest{Workspace: workspace}
	if err := c.client.Call("Remedy.Verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecutionList returns recent executions, optionally scoped to a workspace.
func (c *Client) ExecutionList(workspace string, limit int) (*ExecutionListResponse, error) {
	var resp ExecutionListResponse
	req := ExecutionListRequest{Workspace: workspace, Limit: limit}
	if err := c.client.Call("Remedy.ExecutionList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecutionShow returns one execution with its checkpoints and logs.
func (c *Client) ExecutionShow(id string, logLimit int) (*ExecutionShowResponse, error) {
	var resp ExecutionShowResponse
	req := ExecutionShowRequest{ID: id, LogLimit: logLimit}
	if err := c.client.Call("Remedy.ExecutionShow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Remedy.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Remedy.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
