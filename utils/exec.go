package utils

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

// LocalCmd runs a shell command locally and returns its output.
func LocalCmd(command string) (error, string, string) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd := exec.Command("bash", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return err, stdout.String(), stderr.String()
}

// DecryptFile pipes the credentials file through the external secrets
// tool and returns the plaintext. Defaults to sops; override with
// PROPBENCH_DECRYPT_CMD.
func DecryptFile(path string) ([]byte, error) {
	tool := os.Getenv("PROPBENCH_DECRYPT_CMD")
	if tool == "" {
		tool = "sops -d"
	}
	err, out, eout := LocalCmd(fmt.Sprintf("%s %q", tool, path))
	if err != nil {
		return nil, fmt.Errorf("decrypting %s with %q: %v: %s", path, tool, err, eout)
	}
	return []byte(out), nil
}
