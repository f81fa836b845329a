package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marmos91/webio/pkg/config"
	"github.com/marmos91/webio/pkg/session"
)

var (
	catUser     string
	catPassword string
)

var catCmd = &cobra.Command{
	Use:   "cat NAME...",
	Short: "Print files through the session layer",
	Long: `Open each file through a session, exactly as a request would, and
print its content. Dynamic entries run their routine and the transmit
queue is printed instead.

Examples:
  webio cat index.html
  webio cat memory.ssi
  webio cat private.html --user admin --password secret`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCat,
}

func init() {
	catCmd.Flags().StringVar(&catUser, "user", "", "user for protected entries")
	catCmd.Flags().StringVar(&catPassword, "password", "", "password for protected entries")
}

func runCat(cmd *cobra.Command, args []string) error {
	_, rt, stop, err := start(cmd.Context())
	if err != nil {
		return err
	}
	defer stop()

	m := rt.Manager
	s, err := m.NewSession()
	if err != nil {
		return err
	}
	defer func() { _ = m.EndSession(s) }()

	out := cmd.OutOrStdout()
	for _, name := range args {
		if err := catFile(rt, s, name, out); err != nil {
			return err
		}
	}
	return nil
}

func catFile(rt *config.Runtime, s *session.Session, name string, out io.Writer) error {
	m := rt.Manager

	f, err := m.OpenFile(s, name, "r")
	if err != nil {
		return err
	}
	defer func() { _ = m.CloseFile(f) }()

	if !m.Authenticate(f, catUser, catPassword) {
		return fmt.Errorf("%s: access denied", name)
	}

	if dynamic(rt, f) {
		if err := m.Push(f, s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return drain(m, s, out)
	}

	buf := make([]byte, session.TxBufSize)
	for {
		n, err := m.Read(f, buf)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if n == 0 {
			return nil
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
	}
}

// dynamic reports whether f is an embedded entry produced by its routine.
func dynamic(rt *config.Runtime, f *session.File) bool {
	e, ok := rt.Embedded[f.Mount.Name]
	if !ok {
		return false
	}
	entry, ok := e.Lookup(f.Name)
	return ok && entry.Flags.Dynamic()
}

// drain writes and frees the session's transmit queue.
func drain(m *session.Manager, s *session.Session, out io.Writer) error {
	var errs []error
	for {
		b, ok := m.PopTransmitBuffer(s)
		if !ok {
			return errors.Join(errs...)
		}
		if _, err := out.Write(b.Bytes()); err != nil {
			errs = append(errs, err)
		}
		if err := m.FreeTransmitBuffer(b); err != nil {
			errs = append(errs, err)
		}
	}
}
