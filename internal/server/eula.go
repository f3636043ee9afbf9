package server

import (
	"os"
	"path/filepath"
	"strings"
)

const eulaFile = "eula.txt"

// EulaValue reports the eula.txt state of a server directory: the accepted
// flag and whether the file exists at all.
func EulaValue(dir string) (accepted bool, exists bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, eulaFile))
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(k) == "eula" {
			return strings.EqualFold(strings.TrimSpace(v), "true"), true, nil
		}
	}
	return false, true, nil
}

// AcceptEula rewrites eula.txt with eula=true, preserving other lines, via a
// temp file and rename.
func AcceptEula(dir string) error {
	path := filepath.Join(dir, eulaFile)
	var lines []string
	replaced := false
	if data, err := os.ReadFile(path); err == nil {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		for i, line := range lines {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "#") && strings.HasPrefix(trimmed, "eula") {
				if k, _, ok := strings.Cut(trimmed, "="); ok && strings.TrimSpace(k) == "eula" {
					lines[i] = "eula=true"
					replaced = true
				}
			}
		}
	}
	if !replaced {
		lines = append(lines, "eula=true")
	}

	tmp, err := os.CreateTemp(dir, ".eula-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
