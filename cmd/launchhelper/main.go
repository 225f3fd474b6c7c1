// Command launchhelper is a demo helper process peer: it speaks the wire
// protocol on stdin/stdout and fork/exec's real OS processes with os/exec.
// It has no bearing on the process state machine in package launcher — it
// exists so launchctl can exercise the protocol end-to-end without a mock.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/arcflow/launchbridge/launcher/wire"
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "launchhelper: %v\n", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	h := newHelper(out)
	parser := wire.NewParser()
	buf := make([]byte, 32*1024)

	for {
		n, err := in.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
			for {
				pkt, perr := parser.Next()
				if perr != nil {
					h.shutdownAll()
					return perr
				}
				if pkt == nil {
					break
				}
				if done := h.handle(pkt); done {
					h.shutdownAll()
					return nil
				}
			}
		}
		if err != nil {
			h.shutdownAll()
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// helper owns the token->process map and serializes every write to out,
// since stdout/stderr pumps and the main read loop all produce packets
// concurrently.
type helper struct {
	writeMu sync.Mutex
	out     io.Writer

	mu    sync.Mutex
	procs map[wire.Token]*proc
}

func newHelper(out io.Writer) *helper {
	return &helper{out: out, procs: make(map[wire.Token]*proc)}
}

// proc tracks one launched child process and its stdin pipe, so later Write
// and StopProcess packets for the same token can reach it.
type proc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (h *helper) send(p wire.Packet) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	h.out.Write(wire.Serialize(p))
}

// handle dispatches one inbound packet and reports whether the helper
// should exit (only Shutdown returns true).
func (h *helper) handle(p wire.Packet) bool {
	switch pkt := p.(type) {
	case *wire.StartProcessPacket:
		h.startProcess(pkt)
	case *wire.WritePacket:
		h.write(pkt)
	case *wire.StopProcessPacket:
		h.stop(pkt.PacketToken())
	case *wire.ShutdownPacket:
		return true
	}
	return false
}

func (h *helper) startProcess(pkt *wire.StartProcessPacket) {
	token := pkt.PacketToken()
	cmd := exec.Command(pkt.Command, pkt.Arguments...)
	if pkt.WorkingDir != "" {
		cmd.Dir = pkt.WorkingDir
	}
	if len(pkt.Env) > 0 {
		cmd.Env = pkt.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.send(wire.NewProcessErrorPacket(token, wire.ErrorFailedToStart, err.Error()))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.send(wire.NewProcessErrorPacket(token, wire.ErrorFailedToStart, err.Error()))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		h.send(wire.NewProcessErrorPacket(token, wire.ErrorFailedToStart, err.Error()))
		return
	}

	if err := cmd.Start(); err != nil {
		h.send(wire.NewProcessErrorPacket(token, wire.ErrorFailedToStart, err.Error()))
		return
	}

	p := &proc{cmd: cmd, stdin: stdin}
	h.mu.Lock()
	h.procs[token] = p
	h.mu.Unlock()

	h.send(wire.NewProcessStartedPacket(token, int32(cmd.Process.Pid)))

	if len(pkt.WriteData) > 0 {
		stdin.Write(pkt.WriteData)
	}
	if pkt.Mode == wire.ProcessModeReader {
		stdin.Close()
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go h.pump(&pumps, token, stdout, false)
	go h.pump(&pumps, token, stderr, true)

	go func() {
		pumps.Wait()
		h.finish(token, cmd)
	}()
}

// pump streams one of a child's output fds to the caller in chunks of at
// most 4096 bytes, one ReadyReadStandardOutput/Error packet per read.
func (h *helper) pump(wg *sync.WaitGroup, token wire.Token, r io.Reader, isStderr bool) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if isStderr {
				h.send(wire.NewReadyReadStandardErrorPacket(token, chunk))
			} else {
				h.send(wire.NewReadyReadStandardOutputPacket(token, chunk))
			}
		}
		if err != nil {
			return
		}
	}
}

func (h *helper) finish(token wire.Token, cmd *exec.Cmd) {
	err := cmd.Wait()

	fin := wire.NewProcessFinishedPacket(token)
	if err == nil {
		fin.ExitStatus = wire.ExitStatusNormal
		fin.ExitCode = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		fin.ExitCode = int32(exitErr.ExitCode())
		if exitErr.ExitCode() < 0 {
			fin.ExitStatus = wire.ExitStatusCrash
			fin.Error = wire.ErrorCrashed
			fin.ErrorMessage = err.Error()
		} else {
			fin.ExitStatus = wire.ExitStatusNormal
		}
	} else {
		fin.ExitStatus = wire.ExitStatusCrash
		fin.Error = wire.ErrorFailedToStart
		fin.ErrorMessage = err.Error()
	}

	h.mu.Lock()
	delete(h.procs, token)
	h.mu.Unlock()

	h.send(fin)
}

func (h *helper) write(pkt *wire.WritePacket) {
	h.mu.Lock()
	p, ok := h.procs[pkt.PacketToken()]
	h.mu.Unlock()
	if !ok {
		return
	}
	p.stdin.Write(pkt.InputData)
}

func (h *helper) stop(token wire.Token) {
	h.mu.Lock()
	p, ok := h.procs[token]
	h.mu.Unlock()
	if !ok {
		return
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}

func (h *helper) shutdownAll() {
	h.mu.Lock()
	procs := make([]*proc, 0, len(h.procs))
	for _, p := range h.procs {
		procs = append(procs, p)
	}
	h.mu.Unlock()
	for _, p := range procs {
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
	}
}
