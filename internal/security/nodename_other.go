//go:build !linux

package security

import (
	"fmt"
	"os"
)

func unameNodename() (string, error) {
	for _, key := range []string{"COMPUTERNAME", "HOSTNAME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no node name in environment")
}
