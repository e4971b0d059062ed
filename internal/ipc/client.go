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

// Scan submits a soft eject for the drive.
func (c *Client) Scan(drive string) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Unplug.Scan", ScanRequest{Drive: drive}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForceEject submits a disruptive eject for the drive.
func (c *Client) ForceEject(drive string, pids []int32) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Unplug.ForceEject", ForceEjectRequest{Drive: drive, PIDs: pids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dismount submits a dismount-then-eject for the drive.
func (c *Client) Dismount(drive string) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Unplug.Dismount", DismountRequest{Drive: drive}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Kill submits the termination of one occupant of the drive.
func (c *Client) Kill(drive string, pid int32) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Unplug.Kill", KillRequest{Drive: drive, PID: pid}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status and current eject state.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Unplug.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Drives retrieves the volume snapshot.
func (c *Client) Drives(removableOnly bool) (*DrivesResponse, error) {
	var resp DrivesResponse
	if err := c.client.Call("Unplug.Drives", DrivesRequest{RemovableOnly: removableOnly}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Unplug.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
