package compiler

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/jgiron42/cc1/pkg/config"
	"github.com/jgiron42/cc1/pkg/stats"
)

func TestCompileSample(t *testing.T) {
	src, err := os.ReadFile("testdata/rot.c")
	if err != nil {
		t.Fatal(err)
	}
	counters := stats.New()
	res, err := Compile("rot.c", string(src), nil, counters)
	if err != nil {
		var b bytes.Buffer
		res.Diagnostics.Render(&b)
		t.Fatalf("Compile failed: %v\n%s", err, b.String())
	}

	for _, fn := range []string{"ft_strlen", "ft_memcpy", "ft_strdup", "ft_strmapi", "factorial", "ft_isalpha", "rot", "main"} {
		if !strings.Contains(res.Assembly, "\n"+fn+":\n") {
			t.Errorf("assembly has no definition of %s", fn)
		}
		if !strings.Contains(res.IR(), fn+":\n") {
			t.Errorf("IR has no unit for %s", fn)
		}
	}
	if !strings.Contains(res.Assembly, "rot@GOTPCREL[rip]") {
		t.Errorf("address of rot is not loaded through the GOT")
	}

	var dump bytes.Buffer
	if err := counters.Dump(&dump); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.Contains(dump.String(), `cc1_functions{emitted="true"} 8`) {
		t.Errorf("unexpected function counter:\n%s", dump.String())
	}
}

func TestCompileDiagnostics(t *testing.T) {
	src := "int main() {\n\treturn y;\n}\n"
	counters := stats.New()
	res, err := Compile("bad.c", src, nil, counters)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.HasPrefix(err.Error(), "bad.c:2:9:") {
		t.Errorf("error %q does not point at y", err)
	}

	var b bytes.Buffer
	if err := res.Diagnostics.Render(&b); err != nil {
		t.Fatal(err)
	}
	want := "bad.c:2:9: error: "
	if !strings.HasPrefix(b.String(), want) {
		t.Errorf("rendered diagnostics = %q, want prefix %q", b.String(), want)
	}
	if !strings.Contains(b.String(), "\n    \treturn y;\n    \t       ^\n") {
		t.Errorf("caret is misplaced:\n%s", b.String())
	}

	var dump bytes.Buffer
	if err := counters.Dump(&dump); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dump.String(), `cc1_diagnostics{severity="error"} 1`) {
		t.Errorf("unexpected diagnostic counter:\n%s", dump.String())
	}
}

func TestCompileParseError(t *testing.T) {
	res, err := Compile("bad.c", "int main( { }", nil, nil)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.HasPrefix(err.Error(), "bad.c: line 1:") {
		t.Errorf("error %q does not name the file and line", err)
	}
	if res.Assembly != "" {
		t.Errorf("assembly produced for a file that does not parse")
	}
}

func TestWarningsAsErrors(t *testing.T) {
	src := `static char s[2] = "abc"; int main() { return s[0]; }`
	if _, err := Compile("w.c", src, nil, nil); err != nil {
		t.Fatalf("a warning failed the build: %v", err)
	}
	cfg := config.Default()
	cfg.WarningsAsErrors = true
	if _, err := Compile("w.c", src, cfg, nil); err == nil {
		t.Fatal("expected the warning to fail the build")
	}
}
