package main

import (
	_ "embed"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chrysalis/internal/core"
	"chrysalis/internal/predicates"
	"chrysalis/internal/types"
)

//go:embed demo_catalog.yaml
var demoCatalog []byte

// demoScript is the embedded first-breath scenario.
type demoScript struct {
	Predicates []predicates.Spec `yaml:"predicates"`
	Deeper     []predicates.Spec `yaml:"deeper"`
	Domain     []types.Candidate `yaml:"domain"`
}

// demoCmd replays the first-breath scenario on an unbound engine
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Watch a fresh engine crystallize twice",
	Long: `Declares existence, has_structure and alive on a fresh engine with no store,
crystallizes a mixed domain, then declares self_aware and crystallizes again.
Workspace state is not touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, err := runDemo(cmd.OutOrStdout())
		return err
	},
}

func loadDemo() (*demoScript, error) {
	var script demoScript
	if err := yaml.Unmarshal(demoCatalog, &script); err != nil {
		return nil, fmt.Errorf("failed to parse demo script: %w", err)
	}
	return &script, nil
}

// runDemo renders the scenario to out and returns both crystallizations.
func runDemo(out io.Writer) (*core.Observation, *core.Observation, error) {
	script, err := loadDemo()
	if err != nil {
		return nil, nil, err
	}

	e := core.NewEngine()
	first := &predicates.Catalog{Path: "demo", Predicates: script.Predicates}
	if _, err := first.DeclareAll(e); err != nil {
		return nil, nil, err
	}

	fmt.Fprintf(out, "\n%s\n\n", st.Title.Render("CHRYSALIS -- Cycle 1: Visible Crystallization"))

	fmt.Fprintln(out, st.Label.Render("--- Before Crystallization ---"))
	fmt.Fprint(out, renderSelf(e.DescribeSelf()))

	fmt.Fprintln(out, st.Label.Render("--- Crystallizing ---"))
	obs := e.Cycle(script.Domain)
	fmt.Fprint(out, renderCrystallization(obs))

	fmt.Fprintln(out, st.Label.Render("--- After Crystallization ---"))
	fmt.Fprint(out, renderSelf(e.DescribeSelf()))

	deeper := &predicates.Catalog{Path: "demo", Predicates: script.Deeper}
	if _, err := deeper.DeclareAll(e); err != nil {
		return nil, nil, err
	}

	fmt.Fprintln(out, st.Label.Render("--- Second Crystallization (deeper) ---"))
	obs2 := e.Cycle(script.Domain)
	fmt.Fprint(out, renderCrystallization(obs2))
	fmt.Fprint(out, renderSelf(e.DescribeSelf()))

	fmt.Fprintf(out, "\n  First crystallization:  %s\n", obs.Result)
	fmt.Fprintf(out, "  Second crystallization: %s\n", obs2.Result)
	fmt.Fprintln(out, "  The system lives and knows itself.")
	return obs, obs2, nil
}
