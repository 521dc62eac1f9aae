package config

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// PromptPassword 在密码为空且 in 为终端时交互读取密码；非终端时保持原样。
func (c *Config) PromptPassword(in *os.File, out io.Writer) error {
	if c.Password != "" || c.Username == "" {
		return nil
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprintf(out, "Password for %s: ", c.Username)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	c.Password = string(b)
	return nil
}
