package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diamondYAML = `
name: diamond
tasks:
  - name: fetch
    priority: user_blocking
    result: raw
  - name: left
    depends_on: [fetch]
    duration: 1ms
  - name: right
    depends_on: [fetch]
    fail: right exploded
  - name: join
    depends_on: [left, right]
    result: done
`

const diamondHCL = `
name = "diamond"

task "fetch" {
  priority = "user_blocking"
  result   = "raw"
}

task "left" {
  depends_on = ["fetch"]
  duration   = "1ms"
}

task "right" {
  depends_on = ["fetch"]
  fail       = "right exploded"
}

task "join" {
  depends_on = ["left", "right"]
  result     = "done"
}
`

// TestParse_FormatsAgree verifies YAML and HCL decode to the same manifest
// Given: The same diamond written in both formats
// When: Both are parsed
// Then: The manifests are equal
func TestParse_FormatsAgree(t *testing.T) {
	// Act
	fromYAML, err := Parse([]byte(diamondYAML), FormatYAML, "diamond.yaml")
	require.NoError(t, err)
	fromHCL, err := Parse([]byte(diamondHCL), FormatHCL, "diamond.hcl")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, fromYAML, fromHCL)
	assert.Equal(t, "diamond", fromYAML.Name)
	require.Len(t, fromYAML.Tasks, 4)
	assert.Equal(t, []string{"left", "right"}, fromYAML.Tasks[3].DependsOn)
	assert.Equal(t, "right exploded", fromYAML.Tasks[2].Fail)
}

func TestParse_InvalidHCL(t *testing.T) {
	_, err := Parse([]byte(`task "a" {`), FormatHCL, "broken.hcl")

	assert.ErrorContains(t, err, "broken.hcl")
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse(nil, Format("toml"), "x.toml")

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestValidate(t *testing.T) {
	m := Manifest{Tasks: []Task{
		{Name: "a"},
		{Name: "a"},
		{Name: ""},
		{Name: "b", Priority: "urgent"},
		{Name: "c", Duration: "soon"},
	}}

	err := m.Validate()

	require.Error(t, err)
	assert.ErrorContains(t, err, `duplicate task "a"`)
	assert.ErrorContains(t, err, "task #2 has no name")
	assert.ErrorContains(t, err, "urgent")
	assert.ErrorContains(t, err, `invalid duration "soon"`)
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"a.yaml": FormatYAML,
		"b.YML":  FormatYAML,
		"c.hcl":  FormatHCL,
	}
	for path, want := range cases {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("d.json")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_NameFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightly.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`task "only" {}`), 0o644))

	m, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "nightly", m.Name)
	assert.Equal(t, []Task{{Name: "only"}}, m.Tasks)
}

// TestParse_HCLEnv verifies HCL expressions can read the environment
func TestParse_HCLEnv(t *testing.T) {
	t.Setenv("TASKGRAPH_TEST_RESULT", "from-env")

	m, err := Parse([]byte(`task "a" { result = env.TASKGRAPH_TEST_RESULT }`), FormatHCL, "env.hcl")

	require.NoError(t, err)
	assert.Equal(t, "from-env", m.Tasks[0].Result)
}

func TestCompile_UnknownDependency(t *testing.T) {
	m := &Manifest{Tasks: []Task{{Name: "a", DependsOn: []string{"ghost"}}}}

	_, err := Compile(m)

	assert.ErrorIs(t, err, core.ErrUnknownTaskID)
	assert.ErrorContains(t, err, "ghost")
}

// TestCompile_Cycle verifies cycles surface from Build
func TestCompile_Cycle(t *testing.T) {
	m := &Manifest{Tasks: []Task{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}}
	c, err := Compile(m)
	require.NoError(t, err)

	_, err = c.Builder.Build()

	var cycle *core.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Len(t, cycle.IDs, 3)
}

// TestCompile_RunsDiamond verifies compiled payloads on a real scheduler
// Given: The diamond manifest, where "right" fails
// When: The compiled graph runs to completion
// Then: join still runs and sees only the predecessor that completed
func TestCompile_RunsDiamond(t *testing.T) {
	// Arrange
	m, err := Parse([]byte(diamondYAML), FormatYAML, "diamond.yaml")
	require.NoError(t, err)
	c, err := Compile(m)
	require.NoError(t, err)
	g, err := c.Builder.Build()
	require.NoError(t, err)

	s := core.NewScheduler(&core.PoolConfig{ID: "manifest", Workers: 2})
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background(), true)
		s.Join()
	})

	// Act
	handles, err := s.SubmitGraph(g)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	joined, err := handles[c.IDs["join"]].WaitContext(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, Output{Task: "join", Result: "done", Inputs: []string{"left"}}, joined)

	_, err = handles[c.IDs["right"]].Result()
	assert.EqualError(t, err, "right exploded")

	fetched, err := handles[c.IDs["fetch"]].Result()
	require.NoError(t, err)
	assert.Equal(t, "raw", fetched.(Output).Result)
}

func TestCompile_Panic(t *testing.T) {
	c, err := Compile(&Manifest{Tasks: []Task{{Name: "boom", Panic: true}}})
	require.NoError(t, err)
	g, err := c.Builder.Build()
	require.NoError(t, err)
	s := core.NewScheduler(&core.PoolConfig{ID: "panics", Workers: 1})
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background(), true)
		s.Join()
	})

	handles, err := s.SubmitGraph(g)
	require.NoError(t, err)
	_, err = handles[c.IDs["boom"]].Result()

	var pe *core.PanicError
	assert.ErrorAs(t, err, &pe)
}

// TestLoad_SampleManifests verifies the shipped samples stay in sync
func TestLoad_SampleManifests(t *testing.T) {
	fromYAML, err := Load(filepath.Join("..", "..", "examples", "manifests", "etl.yaml"))
	require.NoError(t, err)
	fromHCL, err := Load(filepath.Join("..", "..", "examples", "manifests", "etl.hcl"))
	require.NoError(t, err)

	assert.Equal(t, fromYAML, fromHCL)
	_, err = Compile(fromYAML)
	assert.NoError(t, err)
}
