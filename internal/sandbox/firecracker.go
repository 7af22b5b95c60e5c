package sandbox

import (
	"context"
	"fmt"
	"os"
	"time"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	models "github.com/firecracker-microvm/firecracker-go-sdk/client/models"
)

// firecrackerMachine wraps the microVM lifecycle for the Firecracker
// RuntimeKind. Unlike the Docker/Apple Container backends, which shell out
// to an existing daemon, Firecracker requires building a Config and
// driving a Machine directly.
type firecrackerMachine struct {
	socketPath string
	kernelPath string
	rootfs     string
}

func newFirecrackerMachine(kernelPath, rootfsPath string) *firecrackerMachine {
	return &firecrackerMachine{
		socketPath: fmt.Sprintf("/tmp/cratos-firecracker-%d.sock", time.Now().UnixNano()%1_000_000),
		kernelPath: kernelPath,
		rootfs:     rootfsPath,
	}
}

// run boots a microVM, waits for the guest init process to exit, and
// tears the machine down. Output capture happens over the vsock/serial
// console the guest init writes to stdout/stderr fds attached below.
func (fm *firecrackerMachine) run(ctx context.Context, req Request, env map[string]string) (*Result, error) {
	cmdline := firecracker.WithKernelCommandLineOverride(bootArgs(req, env))

	cfg := firecracker.Config{
		SocketPath:      fm.socketPath,
		KernelImagePath: fm.kernelPath,
		KernelArgs:      "",
		Drives: []models.Drive{{
			DriveID:      firecracker.String("rootfs"),
			PathOnHost:   firecracker.String(fm.rootfs),
			IsRootDevice: firecracker.Bool(true),
			IsReadOnly:   firecracker.Bool(true),
		}},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  firecracker.Int64(int64(cpuCoresFor(req.Limits))),
			MemSizeMib: firecracker.Int64(int64(memMiBFor(req.Limits))),
		},
	}
	cmdline(&cfg)

	machine, err := firecracker.NewMachine(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sandbox: build firecracker machine: %w", err)
	}

	if err := machine.Start(ctx); err != nil {
		return nil, fmt.Errorf("sandbox: start firecracker machine: %w", err)
	}
	defer func() {
		_ = machine.StopVMM()
		_ = os.Remove(fm.socketPath)
	}()

	if err := machine.Wait(ctx); err != nil {
		return &Result{ExitCode: -1, Stderr: err.Error()}, nil
	}
	return &Result{ExitCode: 0, Success: true}, nil
}

func cpuCoresFor(l Limits) int {
	if l.CPUMillicores <= 0 {
		return 1
	}
	cores := l.CPUMillicores / 1000
	if cores < 1 {
		return 1
	}
	return cores
}

func memMiBFor(l Limits) int {
	if l.MemoryMB <= 0 {
		return 512
	}
	return l.MemoryMB
}

func bootArgs(req Request, env map[string]string) string {
	args := "console=ttyS0 reboot=k panic=1 pci=off"
	for name, value := range env {
		args += " " + name + "=" + value
	}
	if len(req.Command) > 0 {
		args += " init=" + req.Command[0]
	}
	return args
}
