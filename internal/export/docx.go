package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Pandoc converts HTML to DOCX with the pandoc binary. ReferenceDoc, when
// set, supplies the Word styles.
type Pandoc struct {
	ReferenceDoc string
}

func (p Pandoc) args() []string {
	args := []string{"-f", "html", "-t", "docx", "--standalone", "-o", "-"}
	if p.ReferenceDoc != "" {
		args = append(args, "--reference-doc="+p.ReferenceDoc)
	}
	return args
}

func (p Pandoc) ConvertDOCX(ctx context.Context, html string) ([]byte, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pandoc", p.args()...)
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc failed: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("pandoc execution failed: %w", err)
	}
	return stdout.Bytes(), nil
}
