package isobusfs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tt := []struct {
		name   string
		cwd    string
		input  string
		expect string
	}{
		{"absolute", `\\vol1\dir1`, `\\vol1\dir1\dir2`, `\\vol1\dir1\dir2\`},
		{"relative descend", `\\vol1\dir1`, `.\dir3\dir4`, `\\vol1\dir1\dir3\dir4\`},
		{"double dot", `\\vol1\dir1\dir2\dir3\dir4`, `..\dir5`, `\\vol1\dir1\dir2\dir3\dir5\`},
		{"tilde to volume", `\\vol1\dir1`, `~\`, `\\vol1\~\`},
		{"tilde with tail", `\\vol1\dir1`, `~\msd_dir1\msd_dir2`, `\\vol1\~\msd_dir1\msd_dir2\`},
		{"absolute tilde", `\\vol1\dir1`, `\\vol1\~\`, `\\vol1\~\`},
		{"literal tilde segment", `\\vol1\dir1`, `\\vol1\dir1\~`, `\\vol1\dir1\~\`},
		{"dot tilde", `\\vol1\dir1`, `.\~\`, `\\vol1\dir1\~\`},
		{"tilde prefixed name", `\\vol1\dir1`, `~tilde_dir`, `\\vol1\dir1\~tilde_dir\`},
		{"leading separator is relative", `\\vol1`, `\~\`, `\\vol1\~\`},
		{"volume only", `\\vol1\dir1`, `\\vol1`, `\\vol1\`},
		{"cwd without trailing separator", `\\vol1`, `dir1`, `\\vol1\dir1\`},
		{"cwd with trailing separator", `\\vol1\dir1\`, `dir2`, `\\vol1\dir1\dir2\`},
		{"dot", `\\vol1\dir1`, `.`, `\\vol1\dir1\`},
		{"dot with separators", `\\vol1\dir1`, `.\\\`, `\\vol1\dir1\`},
		{"double dot with separators", `\\vol1\dir1\dir2`, `..\\\`, `\\vol1\dir1\`},
		{"double dot at end", `\\vol1\dir1\dir2`, `..`, `\\vol1\dir1\`},
		{"collapse separators", `\\vol1`, `dir1\\\dir2`, `\\vol1\dir1\dir2\`},
		{"clamp at volume root", `\\vol1\dir1\dir2`, `..\..\..\..\..\..`, `\\vol1\`},
		{"dotted names are literal", `\\vol1`, `...\.hidden`, `\\vol1\...\.hidden\`},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := NormalizePath(tc.cwd, tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expect, actual)
		})
	}
}

func TestNormalizePath_Invalid(t *testing.T) {
	tt := []struct {
		name  string
		cwd   string
		input string
	}{
		{"triple backslash root", `\\vol1\dir1`, `\\\\`},
		{"too many leading separators", `\\vol1\dir1`, `\\\vol1`},
		{"empty volume", `\\vol1\dir1`, `\\`},
		{"dot volume", `\\vol1\dir1`, `\\..\dir1`},
		{"forbidden star", `\\vol1`, `dir*`},
		{"forbidden slash", `\\vol1`, `dir1/dir2`},
		{"forbidden pipe", `\\vol1`, `a|b`},
		{"control character", `\\vol1`, "dir\x01"},
		{"high control character", `\\vol1`, "dir\x85"},
		{"relative without cwd", ``, `dir1`},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizePath(tc.cwd, tc.input)
			require.ErrorIs(t, err, ErrInvalidPath)
			require.Equal(t, ErrorInvalidDestName, ErrorFor(err))
		})
	}
}

func TestNormalizePath_TooLong(t *testing.T) {
	input := strings.Repeat(`abcdefghi\`, MaxDataLength/10+1)
	_, err := NormalizePath(`\\vol1`, input)
	require.ErrorIs(t, err, ErrPathTooLong)
	require.Equal(t, ErrorOutOfMemory, ErrorFor(err))
}

func TestNormalizePath_Idempotent(t *testing.T) {
	cwd := `\\vol1\dir1\dir2`
	inputs := []string{
		`.`, `..`, `~\`, `~\a\..\b`, `\\vol2\x\.\y`, `..\..\..\z`,
		`a\\b\\\c`, `\\vol1\~`, `~tilde_dir\..`,
	}
	for _, in := range inputs {
		once, err := NormalizePath(cwd, in)
		require.NoError(t, err, in)
		twice, err := NormalizePath(cwd, once)
		require.NoError(t, err, in)
		require.Equal(t, once, twice, in)
	}
}

func TestNormalizePath_NeverAboveVolume(t *testing.T) {
	cwd := `\\vol1\a`
	for depth := 1; depth < 8; depth++ {
		in := strings.Repeat(`..\`, depth) + "x"
		out, err := NormalizePath(cwd, in)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(out, `\\vol1\`), out)
	}
}

func TestSplitVolume(t *testing.T) {
	vol, rest, err := SplitVolume(`\\vol1\dir1\dir2`)
	require.NoError(t, err)
	require.Equal(t, "vol1", vol)
	require.Equal(t, `\dir1\dir2`, rest)

	vol, rest, err = SplitVolume(`\\vol1`)
	require.NoError(t, err)
	require.Equal(t, "vol1", vol)
	require.Equal(t, "", rest)

	_, _, err = SplitVolume(`dir1`)
	require.Error(t, err)
	_, _, err = SplitVolume(`\\\dir1`)
	require.Error(t, err)

	require.Equal(t, []string{"dir1", "dir2"}, PathSegments(`\\vol1\dir1\\dir2\`))
}
