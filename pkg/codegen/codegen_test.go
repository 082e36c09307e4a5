package codegen_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/jgiron42/cc1/pkg/codegen"
	"github.com/jgiron42/cc1/pkg/compiler"
	"github.com/jgiron42/cc1/pkg/config"
)

func assertContains(t *testing.T, asm, want string) {
	t.Helper()
	if !strings.Contains(asm, want) {
		t.Errorf("expected assembly to contain %q\n%s", want, asm)
	}
}

func assertNotContains(t *testing.T, asm, unwanted string) {
	t.Helper()
	if strings.Contains(asm, unwanted) {
		t.Errorf("expected assembly not to contain %q\n%s", unwanted, asm)
	}
}

func compile(t *testing.T, src string, cfg *config.Config) *compiler.Result {
	t.Helper()
	res, err := compiler.Compile("test.c", src, cfg, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func withRegisters(n int) *config.Config {
	cfg := config.Default()
	cfg.Registers = n
	return cfg
}

func TestFunctionFrame(t *testing.T) {
	res := compile(t, `int add(int a, int b) { return a + b; }`, nil)
	asm := res.Assembly

	assertContains(t, asm, "\t.intel_syntax noprefix\n")
	assertContains(t, asm, "\t.globl add\n")
	assertContains(t, asm, "\t.type add, @function\n")
	assertContains(t, asm, "add:\n\tpush rbp\n\tmov rbp, rsp\n")
	assertContains(t, asm, ", edi\n")
	assertContains(t, asm, ", esi\n")
	assertContains(t, asm, "\tadd eax, ")
	assertContains(t, asm, "\tleave\n\tret\n")
	assertContains(t, asm, "\t.size add, .-add\n")
	assertContains(t, asm, ".note.GNU-stack")
}

func TestConstantFolding(t *testing.T) {
	res := compile(t, `int main() { int x = 2 + 3 * 4; return x; }`, nil)
	assertContains(t, res.Assembly, ", 14\n")
	assertNotContains(t, res.Assembly, "imul")
	assertNotContains(t, res.Assembly, "\tadd ")
}

func TestFallOffEndReturnsZero(t *testing.T) {
	res := compile(t, `int main() { int x; x = 1; }`, nil)
	assertContains(t, res.Assembly, "\txor eax, eax\n")
}

func TestStaticFunctionIsNotGlobal(t *testing.T) {
	res := compile(t, `static int helper(void) { return 3; } int main() { return helper(); }`, nil)
	assertNotContains(t, res.Assembly, ".globl helper")
	assertContains(t, res.Assembly, "helper:\n")
	assertContains(t, res.Assembly, "\tcall r11\n")
}

func TestDataSections(t *testing.T) {
	src := `
int counter = 42;
static char name[8] = "cc1";
char *greeting = "hello";
double ratio = 1.5;
long big;
int main() { static int calls; calls++; return counter; }
`
	asm := compile(t, src, nil).Assembly

	tests := []string{
		"\t.globl counter\n",
		"counter:\n\t.long 42\n",
		"\t.local name\n",
		"name:\n\t.string \"cc1\"\n\t.zero 4\n",
		"\t.size name, 8\n",
		"greeting:\n\t.quad .LC",
		"ratio:\n\t.quad 4609434218613702656\n",
		"big:\n\t.zero 8\n",
		"\t.local calls.",
		"\t.section .rodata\n",
		"\t.string \"hello\"\n",
	}
	for _, want := range tests {
		assertContains(t, asm, want)
	}
}

func TestStringOperand(t *testing.T) {
	src := `
int puts(char *s);
int main() { puts("hi\n"); return 0; }
`
	asm := compile(t, src, nil).Assembly
	assertContains(t, asm, "\tlea rax, .LC")
	assertContains(t, asm, "\t.string \"hi\\012\"\n")
}

func TestFunctionAddress(t *testing.T) {
	src := `
int twice(int x) { return x * 2; }
int main() { int (*p)(int) = twice; return p(3) + (*p)(4); }
`
	asm := compile(t, src, nil).Assembly
	assertContains(t, asm, "\tmov rax, QWORD PTR twice@GOTPCREL[rip]\n")
	assertContains(t, asm, "\tcall r11\n")
}

func TestStackArguments(t *testing.T) {
	src := `
int sum(int a, int b, int c, int d, int e, int f, int g) { return a + b + c + d + e + f + g; }
int main() { return sum(1, 2, 3, 4, 5, 6, 7); }
`
	asm := compile(t, src, nil).Assembly
	// One stack argument keeps rsp aligned with a pad slot.
	assertContains(t, asm, "\tsub rsp, 8\n")
	assertContains(t, asm, "\tpush rax\n")
	assertContains(t, asm, "\tadd rsp, 16\n")
	assertContains(t, asm, "DWORD PTR [rbp+16]")
	assertContains(t, asm, "\tmov r9d, 6\n")
}

func TestNarrowArgumentsAreWidened(t *testing.T) {
	src := `
int take(char c, unsigned short s, signed char a, short b, int i, int j, char g);
int f(signed char x, short y) { return take(x, y, x, y, 0, 0, x); }
`
	asm := compile(t, src, nil).Assembly
	assertContains(t, asm, "\tmovzx edi, dil\n")
	assertContains(t, asm, "\tmovzx esi, si\n")
	assertContains(t, asm, "\tmovsx edx, dl\n")
	assertContains(t, asm, "\tmovsx ecx, cx\n")
	assertContains(t, asm, "\tmovzx eax, al\n\tpush rax\n")
	assertNotContains(t, asm, "r8d, r8")
	assertNotContains(t, asm, "r9d, r9")
}

func TestDivisionAndShifts(t *testing.T) {
	src := `
int f(int a, int b) { return a / b + a % b; }
unsigned g(unsigned a, unsigned b) { return (a >> b) / 3; }
int h(int a) { return a >> 2; }
`
	asm := compile(t, src, nil).Assembly
	assertContains(t, asm, "\tcdq\n\tidiv ")
	assertContains(t, asm, "\txor edx, edx\n\tdiv r10d\n")
	assertContains(t, asm, "\tshr eax, cl\n")
	assertContains(t, asm, "\tsar eax, 2\n")
}

func TestShortCircuit(t *testing.T) {
	res := compile(t, `int f(int a, int b) { return a && b || !a; }`, nil)
	assertContains(t, res.Assembly, "\tje .Lf.")
	assertContains(t, res.Assembly, "\tsete al\n")
}

func TestFailedFunctionIsSkipped(t *testing.T) {
	src := `
int ok(void) { return 1; }
int bad(void) { return missing; }
`
	res, err := compiler.Compile("test.c", src, nil, nil)
	if err == nil {
		t.Fatal("expected an error for an undeclared identifier")
	}
	assertContains(t, err.Error(), "missing")
	assertContains(t, res.Assembly, "\nok:\n")
	assertNotContains(t, res.Assembly, "\nbad:\n")
}

func TestEmitIR(t *testing.T) {
	cfg := config.Default()
	cfg.EmitIR = true
	res := compile(t, `int main() { int x = 3; return x; }`, cfg)
	assertContains(t, res.Assembly, "\t# return")
	if ir := res.IR(); !strings.Contains(ir, "main:\n") {
		t.Errorf("IR listing misses the function header:\n%s", ir)
	}
}

// checkTrace fails when two intervals share a storage at the same
// instruction.
func checkTrace(t *testing.T, trace []codegen.Interval) {
	t.Helper()
	byStorage := make(map[string][]codegen.Interval)
	for _, iv := range trace {
		if iv.End < iv.Start {
			t.Errorf("interval %+v ends before it starts", iv)
		}
		byStorage[iv.Storage] = append(byStorage[iv.Storage], iv)
	}
	for storage, ivs := range byStorage {
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
		for i := 1; i < len(ivs); i++ {
			if ivs[i].Start <= ivs[i-1].End {
				t.Errorf("%s: t%d [%d,%d] overlaps t%d [%d,%d]", storage,
					ivs[i-1].Temp, ivs[i-1].Start, ivs[i-1].End,
					ivs[i].Temp, ivs[i].Start, ivs[i].End)
			}
		}
	}
}

const pressure = `
int f(int a, int b, int c, int d, int e, int g, int h, int i) {
	return a + b + c + d + e + g + h + i;
}

int main() {
	int x = 7;
	int y = 3;
	int arr[4];
	int *p = arr;
	int k;
	for (k = 0; k < 4; k++)
		arr[k] = k * x;
	int r = (x + y) * (x - y) + f(x * 2, y * 3, x + y, x - y, x * y, x / y, x % y, x << y) + (x ^ y);
	r += p[1] ? f(1, 2, 3, 4, 5, 6, 7, 8) : -1;
	switch (r & 3) {
	case 0:
		r = r / (y + 1);
		break;
	case 1:
		r = r >> (y - 1);
	default:
		r--;
	}
	return r > 0 && x < y ? r : -r;
}
`

func TestRegisterPressure(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, codegen.MaxRegisters} {
		res := compile(t, pressure, withRegisters(n))
		for _, fn := range []string{"f", "main"} {
			trace, ok := res.Trace[fn]
			if !ok {
				t.Fatalf("registers=%d: no trace for %s", n, fn)
			}
			checkTrace(t, trace)
		}
		if n == 0 {
			for _, iv := range res.Trace["main"] {
				if !strings.HasPrefix(iv.Storage, "[rbp") {
					t.Errorf("registers=0: t%d stored in %s", iv.Temp, iv.Storage)
				}
			}
		}
	}
}

func TestCalleeSavedRegistersAreRestored(t *testing.T) {
	res := compile(t, `int main() { int x = 1; int y = x + 2; return y * x; }`, withRegisters(1))
	asm := res.Assembly
	assertContains(t, asm, "\tmov QWORD PTR [rbp-")
	assertContains(t, asm, "], rbx\n")
	assertContains(t, asm, "\tmov rbx, QWORD PTR [rbp-")
}
