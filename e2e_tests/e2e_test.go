package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jgiron42/cc1/pkg/compiler"
	"github.com/jgiron42/cc1/pkg/config"
)

type program struct {
	name   string
	source string
	exit   int
	stdout string
}

var programs = []program{
	{
		name: "fibonacci",
		source: `
int fib(int n) {
    if (n == 0) { return 0; }
    if (n == 1) { return 1; }
    return fib(n - 1) + fib(n - 2);
}

int main() {
    int limit = 6;
    return fib(limit);
}
`,
		exit: 8,
	},
	{
		name: "loops and arrays",
		source: `
int main() {
    int squares[10];
    int i;
    int total = 0;
    for (i = 0; i < 10; i++)
        squares[i] = i * i;
    i = 0;
    while (i < 10) {
        if (i % 2)
            total += squares[i];
        i++;
    }
    do {
        total -= 1;
    } while (total > 160);
    return total;
}
`,
		exit: 160,
	},
	{
		name: "strings and pointers",
		source: `
int printf(char *fmt, ...);

unsigned long ft_strlen(char *s) {
    char *p = s;
    while (*p)
        p++;
    return p - s;
}

void rot(char *s, int n) {
    for (; *s; s++)
        if (*s >= 'a' && *s <= 'z')
            *s = (*s - 'a' + n) % 26 + 'a';
}

int main() {
    static char buf[16] = "hello";
    rot(buf, 13);
    printf("%s %d\n", buf, (int)ft_strlen(buf));
    return 0;
}
`,
		stdout: "uryyb 5\n",
	},
	{
		name: "function pointers",
		source: `
static int twice(int x) { return x * 2; }
static int square(int x) { return x * x; }

int apply(int (*f)(int), int v) { return f(v); }

int main() {
    int (*table[2])(int);
    table[0] = twice;
    table[1] = square;
    return apply(table[0], 5) + (*table[1])(4);
}
`,
		exit: 26,
	},
	{
		name: "many arguments",
		source: `
long weigh(long a, long b, long c, long d, long e, long f, long g, long h, long i) {
    return a + 2 * b + 3 * c + 4 * d + 5 * e + 6 * f + 7 * g + 8 * h + 9 * i;
}

int main() {
    return weigh(1, 1, 1, 1, 1, 1, 1, 1, 1) - weigh(0, 0, 0, 0, 0, 0, 0, 0, 1);
}
`,
		exit: 36,
	},
	{
		name: "globals and statics",
		source: `
int counter = 40;
static char tag[4] = "ab";

int next(void) {
    static int calls;
    calls++;
    return calls;
}

int main() {
    next();
    next();
    return counter + next() - 3 + tag[1] - 'b' + sizeof(tag);
}
`,
		exit: 44,
	},
	{
		name: "switch and goto",
		source: `
int classify(int c) {
    switch (c) {
    case 0:
        return 10;
    case 1:
    case 2:
        c += 20;
        break;
    default:
        goto out;
    }
    return c;
out:
    return -1;
}

int main() {
    return classify(0) + classify(2) + classify(9);
}
`,
		exit: 31,
	},
	{
		name: "short circuit",
		source: `
int hits;

int touch(int v) { hits++; return v; }

int main() {
    if (touch(0) && touch(1))
        return 100;
    if (touch(1) || touch(1))
        hits += 10;
    return hits + (hits > 5 ? 1 : 0);
}
`,
		exit: 13,
	},
	{
		name: "integer conversions",
		source: `
int main() {
    signed char c = -3;
    unsigned char u = 250;
    short s = -1000;
    long l = c;
    unsigned int big = 4000000000u;
    int r = 0;
    if (l == -3) r += 1;
    if (u + 10 == 260) r += 2;
    if (s / 10 == -100) r += 4;
    if (big / 2 == 2000000000u) r += 8;
    if ((big >> 31) == 1) r += 16;
    if ((c >> 1) == -2) r += 32;
    return r;
}
`,
		exit: 63,
	},
}

func haveToolchain(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("generated code targets linux/amd64, running on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no system C toolchain to assemble and link with")
	}
	return cc
}

func TestCompileAndRun(t *testing.T) {
	cc := haveToolchain(t)

	for _, regs := range []int{0, 2, config.Default().Registers} {
		for _, p := range programs {
			t.Run(fmt.Sprintf("%s/registers=%d", p.name, regs), func(t *testing.T) {
				cfg := config.Default()
				cfg.Registers = regs
				res, err := compiler.Compile(p.name+".c", p.source, cfg, nil)
				if err != nil {
					t.Fatalf("Compile failed: %v", err)
				}

				dir := t.TempDir()
				asmPath := filepath.Join(dir, "prog.s")
				binPath := filepath.Join(dir, "prog")
				if err := os.WriteFile(asmPath, []byte(res.Assembly), 0o644); err != nil {
					t.Fatal(err)
				}
				if out, err := exec.Command(cc, "-o", binPath, asmPath).CombinedOutput(); err != nil {
					t.Fatalf("assembling failed: %v\n%s\n%s", err, out, res.Assembly)
				}

				var stdout bytes.Buffer
				cmd := exec.Command(binPath)
				cmd.Stdout = &stdout
				err = cmd.Run()
				code := 0
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					code = exitErr.ExitCode()
				} else if err != nil {
					t.Fatalf("run failed: %v", err)
				}

				if code != p.exit {
					t.Errorf("exit code = %d, want %d\n%s", code, p.exit, res.Assembly)
				}
				if stdout.String() != p.stdout {
					t.Errorf("stdout = %q, want %q", stdout.String(), p.stdout)
				}
			})
		}
	}
}
