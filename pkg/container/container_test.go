package container

import (
	"strings"
	"syscall"
	"testing"

	"github.com/woody-containers/woody/pkg/cgroups"
	"github.com/woody-containers/woody/pkg/namespace"
)

func TestSpecValidate(t *testing.T) {
	rootfs := t.TempDir()

	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{
			name: "valid",
			spec: NewSpec("abc123", "/bin/echo", []string{"hello"}, rootfs, cgroups.DefaultResourceLimits()),
		},
		{
			name:    "empty id",
			spec:    Spec{Command: "/bin/echo", Rootfs: rootfs},
			wantErr: "id",
		},
		{
			name:    "empty command",
			spec:    Spec{ID: "abc123", Rootfs: rootfs},
			wantErr: "command",
		},
		{
			name:    "empty rootfs",
			spec:    Spec{ID: "abc123", Command: "/bin/echo"},
			wantErr: "rootfs",
		},
		{
			name:    "missing rootfs dir",
			spec:    Spec{ID: "abc123", Command: "/bin/echo", Rootfs: "/nonexistent/rootfs"},
			wantErr: "doesn't exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSpecDefaults(t *testing.T) {
	spec := NewSpec("abc123", "/bin/sh", nil, "/tmp/rootfs", cgroups.ResourceLimits{})

	if spec.Namespaces != namespace.DefaultSet {
		t.Errorf("Namespaces = %v, want DefaultSet", spec.Namespaces)
	}
	if spec.Hostname != "woody-abc123" {
		t.Errorf("Hostname = %q", spec.Hostname)
	}
	if spec.CgroupName() != "woody-abc123" {
		t.Errorf("CgroupName = %q", spec.CgroupName())
	}
}

func TestSpecArgv(t *testing.T) {
	spec := NewSpec("abc123", "/bin/echo", []string{"hello", "world"}, "/tmp/rootfs", cgroups.ResourceLimits{})

	argv := spec.Argv()
	if len(argv) != 3 || argv[0] != "/bin/echo" || argv[1] != "hello" || argv[2] != "world" {
		t.Errorf("Argv() = %v", argv)
	}
}

func TestDecodeWaitStatus(t *testing.T) {
	// Exit codes and termination signals occupy different bits of the
	// raw status word.
	exited := syscall.WaitStatus(0x0300) // exit code 3
	got := DecodeWaitStatus(exited)
	if got.Signaled || got.Code != 3 {
		t.Errorf("DecodeWaitStatus(exit 3) = %+v", got)
	}

	signaled := syscall.WaitStatus(0x0009) // SIGKILL
	got = DecodeWaitStatus(signaled)
	if !got.Signaled || got.Signal != syscall.SIGKILL {
		t.Errorf("DecodeWaitStatus(SIGKILL) = %+v", got)
	}
	if got.Code != -1 {
		t.Errorf("signaled status should not carry an exit code, got %d", got.Code)
	}
}

func TestExitStatusString(t *testing.T) {
	if got := (ExitStatus{Code: 0}).String(); got != "exited with status 0" {
		t.Errorf("String() = %q", got)
	}
	s := ExitStatus{Code: -1, Signal: syscall.SIGKILL, Signaled: true}
	if got := s.String(); !strings.Contains(got, "signal 9") {
		t.Errorf("String() = %q", got)
	}
}
