// Package build implements the build driver described in spec.md §4.4: for
// each required, not-yet-loaded compile-time definition it writes generated
// source, compiles, links, dynamically loads the result, and resolves the
// definition's pending references, batching subprocess waves under a
// concurrency cap.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/ardnew/cakelisp/internal/cachedb"
	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/eval"
	"github.com/ardnew/cakelisp/internal/loadlib"
	"github.com/ardnew/cakelisp/internal/namestyle"
	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/procrun"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/internal/writer"
	"github.com/ardnew/cakelisp/log"
)

// Stage is a build object's position in the per-object state machine.
type Stage int

const (
	None Stage = iota
	Compiling
	Linking
	Loading
	ResolvingReferences
	Finished
)

func (s Stage) String() string {
	switch s {
	case None:
		return "None"
	case Compiling:
		return "Compiling"
	case Linking:
		return "Linking"
	case Loading:
		return "Loading"
	case ResolvingReferences:
		return "ResolvingReferences"
	case Finished:
		return "Finished"
	default:
		return "Invalid"
	}
}

// Object is the per-definition build-state record (spec.md §4.4).
type Object struct {
	ID         uint64
	Definition *env.Definition
	Name       string
	Stage      Stage
	Status     int
	BaseName   string
	SourcePath string
	ObjectPath string
	SharedPath string
	// tempObjectPath is where the compiler writes the object file before it
	// is renamed into place, so a stale object from a killed prior run at
	// ObjectPath is never mistaken for this wave's output.
	tempObjectPath string
	skippedCompile bool
	Err            error
}

// Driver owns the cache directory and compiler configuration used to
// process a wave of required compile-time definitions.
type Driver struct {
	Env          *env.Environment
	Eval         *eval.Evaluator
	CacheDir     string
	SourceDir    string
	CompilerPath string
	IncludeDirs  []string
	Concurrency  int

	// Cache persists freshness records across a cache-directory wipe. Nil
	// disables the content-hash supplement; mtime comparison still applies.
	Cache *cachedb.DB

	log log.Logger
}

// New constructs a Driver with Concurrency 8 (spec.md §4.4's stated
// default) and CompilerPath "c++"; callers may overwrite either field.
func New(e *env.Environment, v *eval.Evaluator, cacheDir, sourceDir string, logger log.Logger) *Driver {
	if logger.Logger == nil {
		logger = log.With()
	}

	return &Driver{
		Env:          e,
		Eval:         v,
		CacheDir:     cacheDir,
		SourceDir:    sourceDir,
		CompilerPath: "c++",
		Concurrency:  8,
		log:          logger,
	}
}

// Result summarizes one call to Run.
type Result struct {
	// Queued is how many definitions entered the build queue this pass.
	Queued int
	// Loaded is how many definitions finished the pass in Finished stage.
	Loaded int
	// RelevantChanges counts reference transitions that make another pass
	// worthwhile (spec.md §4.4 "flag a relevant change").
	RelevantChanges int
	Objects         []*Object
}

// Run performs one build-driver pass: the readiness check over every
// required, not-yet-loaded compile-time definition, followed by the staged
// build of whichever definitions became eligible.
func (d *Driver) Run(ctx context.Context) Result {
	var result Result

	candidates := d.readinessCheck(&result)
	if len(candidates) == 0 {
		return result
	}

	result.Queued = len(candidates)

	if err := os.MkdirAll(d.CacheDir, 0o755); err != nil {
		for _, obj := range candidates {
			obj.Err = fmt.Errorf("build: create cache dir: %w", err)
		}

		result.Objects = candidates

		return result
	}

	for _, obj := range candidates {
		d.writeSource(obj)
	}

	d.runWave(ctx, Compiling, candidates)

	needsLink := make([]*Object, 0, len(candidates))

	for _, obj := range liveObjects(candidates) {
		if obj.skippedCompile {
			// spec.md §4.4 stage 2: a cache hit skips compile *and* link,
			// jumping straight to load against the existing shared library.
			continue
		}

		if err := os.Rename(obj.tempObjectPath, obj.ObjectPath); err != nil {
			obj.Err = fmt.Errorf("build: finalize object for %s: %w", obj.Name, err)

			continue
		}

		needsLink = append(needsLink, obj)
	}

	d.runWave(ctx, Linking, needsLink)

	for _, obj := range liveObjects(candidates) {
		d.recordFreshness(obj)
	}

	for _, obj := range liveObjects(candidates) {
		d.load(obj)
	}

	for _, obj := range candidates {
		if obj.Stage == Loading && obj.Err == nil {
			obj.Stage = Finished
			result.Loaded++
		}
	}

	for _, obj := range liveObjects(candidates) {
		changes := d.resolveReferences(obj)
		result.RelevantChanges += changes
	}

	result.Objects = candidates

	return result
}

func liveObjects(objs []*Object) []*Object {
	live := make([]*Object, 0, len(objs))

	for _, obj := range objs {
		if obj.Err == nil {
			live = append(live, obj)
		}
	}

	return live
}

// readinessCheck implements spec.md §4.4's per-reference readiness rules.
// It advances the guess/resolve state machine over every required
// definition's references — the module root and ordinary runtime functions
// included, not only compile-time macros/generators — since an unknown
// reference discovered inside any of them must still reach Guessed (spec.md
// scenario S4: unknown call -> Guessed, a speculative C call, zero errors).
// It returns only the required, not-yet-loaded compile-time definitions
// eligible to enter the build queue this pass.
func (d *Driver) readinessCheck(result *Result) []*Object {
	var candidates []*Object

	for name, def := range d.Env.Definitions {
		if !def.Required {
			continue
		}

		canBuild := true
		hasGuessedRefs := false
		relevantChange := false

		for refName, status := range def.References {
			refDef, known := d.Env.Lookup(refName)

			switch {
			case known && refDef.Kind.IsCompileTime() && refDef.Loaded:
				if status.State == env.Guessed {
					relevantChange = true
				}

				status.Transition(env.Resolved)

			case known && refDef.Kind.IsCompileTime() && !refDef.Loaded:
				status.Transition(env.WaitingForLoad)

				canBuild = false

			case known && !refDef.Kind.IsCompileTime():
				d.resolveKnownFunctionSites(status)
				status.Transition(env.Resolved)

			default:
				if status.State == env.Guessed {
					hasGuessedRefs = true
				}

				if status.State == env.None {
					d.guessSites(status)
					status.Transition(env.Guessed)
					hasGuessedRefs = true
				}
			}
		}

		if result != nil && relevantChange {
			result.RelevantChanges++
		}

		if def.Loaded || !def.Kind.IsCompileTime() {
			// Reference state above is kept current regardless of kind, but
			// only a not-yet-loaded compile-time definition needs a build.
			continue
		}

		if canBuild && (!hasGuessedRefs || relevantChange) {
			candidates = append(candidates, &Object{
				ID:         d.Env.NextBuildID(),
				Definition: def,
				Name:       name,
			})
		}
	}

	return candidates
}

// resolveKnownFunctionSites runs the function-invocation generator into
// every occurrence's splice Output for a reference that turned out to name
// a runtime function.
func (d *Driver) resolveKnownFunctionSites(status *env.ReferenceStatus) {
	if d.Eval.Invoker == nil {
		return
	}

	for i := 0; i < len(status.Sites); i++ {
		site := status.Sites[i]
		if site.Resolved {
			continue
		}

		d.Eval.Invoker(d.Env, site.Ctx, site.Source, site.Start, site.Splice)
		site.Resolved = true
	}
}

// guessSites emits a speculative plain-function-call invocation into every
// occurrence's splice Output the first time a reference is discovered
// unknown. The sites slice may grow while this runs (guess-emission can
// synthesize new references via nested invocations), so it iterates by
// index rather than over a captured range.
func (d *Driver) guessSites(status *env.ReferenceStatus) {
	if d.Eval.Invoker == nil {
		return
	}

	for i := 0; i < len(status.Sites); i++ {
		site := status.Sites[i]
		d.Eval.Invoker(d.Env, site.Ctx, site.Source, site.Start, site.Splice)
	}
}

func (d *Driver) writeSource(obj *Object) {
	base := namestyle.ToC(obj.Name)
	obj.BaseName = "comptime_" + base
	obj.SourcePath = filepath.Join(d.CacheDir, obj.BaseName+".cpp")
	obj.ObjectPath = filepath.Join(d.CacheDir, obj.BaseName+".o")
	obj.SharedPath = filepath.Join(d.CacheDir, "lib"+base+".so")
	obj.tempObjectPath = obj.ObjectPath + "." + uniqueScratchName("wave") + ".tmp"

	f, err := os.Create(obj.SourcePath)
	if err != nil {
		obj.Err = fmt.Errorf("build: write source for %s: %w", obj.Name, err)

		return
	}
	defer f.Close()

	fmt.Fprintf(f, "// %s\n%s\n%s\n", obj.BaseName, loadlib.HostAPIHeader, entrySignature(obj))

	if err := writer.WriteStream(f, &obj.Definition.Output.Source); err != nil {
		obj.Err = fmt.Errorf("build: write source for %s: %w", obj.Name, err)

		return
	}

	fmt.Fprintln(f, "\n"+closingBrace(obj))
}

// entrySignature emits the flat C ABI every compiled macro and generator
// shares: host, the CakelispHostAPI vtable; handle, an opaque per-invocation
// token naming the caller's Go-side context; start, the source index to
// begin reading from (spec.md §6). Macro bodies call host->AppendOutputToken
// to produce replacement tokens; generator bodies call host->EmitFragment to
// write output directly — the two kinds share one signature because the
// distinction lives entirely in which callback the body calls, not in the
// parameter list.
func entrySignature(obj *Object) string {
	entry := namestyle.ToSymbol(obj.Name)

	return fmt.Sprintf(
		"extern \"C\" int32_t %s(const CakelispHostAPI* host, void* handle, int32_t start) {",
		entry)
}

func closingBrace(*Object) string { return "}" }

// runWave runs a build stage (Compiling or Linking) over every live object
// concurrently, capped at d.Concurrency.
func (d *Driver) runWave(ctx context.Context, stage Stage, objs []*Object) {
	if len(objs) == 0 {
		return
	}

	cmds := make([]procrun.Command, len(objs))

	for i, obj := range objs {
		obj.Stage = stage
		cmds[i] = d.command(stage, obj)
	}

	results := procrun.Wave(ctx, d.Concurrency, cmds)

	for i, obj := range objs {
		r := results[i]
		obj.Status = r.Status

		if r.Err != nil {
			obj.Err = fmt.Errorf("build: %s %s: %w", stage, obj.Name, r.Err)

			continue
		}

		if r.Status != 0 {
			obj.Err = fmt.Errorf("build: %s %s: exit status %d: %s", stage, obj.Name, r.Status, r.Stderr)
		}
	}
}

func (d *Driver) command(stage Stage, obj *Object) procrun.Command {
	if stage == Compiling && d.freshnessUnchanged(obj) {
		obj.skippedCompile = true

		return procrun.Command{Path: "true"}
	}

	args := []string{"-g", "-fPIC"}
	if d.SourceDir != "" {
		args = append(args, "-I"+d.SourceDir)
	}

	for _, dir := range d.IncludeDirs {
		args = append(args, "-I"+dir)
	}

	switch stage {
	case Compiling:
		args = append(args, "-c", obj.SourcePath, "-o", obj.tempObjectPath)
	case Linking:
		args = append(args, "-shared", obj.ObjectPath, "-o", obj.SharedPath)
	}

	return procrun.Command{
		Path:        d.CompilerPath,
		Args:        args,
		IncludeDirs: d.IncludeDirs,
	}
}

// freshnessUnchanged reports whether the generated source is unchanged from
// the last build that produced obj.SharedPath (spec.md §4.4 stage 2's mtime
// check). When a cachedb is attached, a matching content hash also lets a
// source whose mtime moved but whose bytes did not still skip rebuilding;
// without one, only the literal mtime comparison applies.
func (d *Driver) freshnessUnchanged(obj *Object) bool {
	soInfo, err := os.Stat(obj.SharedPath)
	if err != nil {
		return false
	}

	contents, err := os.ReadFile(obj.SourcePath)
	if err != nil {
		return false
	}

	hash := fmt.Sprintf("%x", xxh3.Hash(contents))

	if d.Cache != nil {
		cached, sharedPath, ok, err := d.Cache.Lookup(obj.Name)
		if err == nil && ok && cached == hash && sharedPath == obj.SharedPath {
			return true
		}
	}

	srcInfo, err := os.Stat(obj.SourcePath)
	if err != nil {
		return false
	}

	return !soInfo.ModTime().Before(srcInfo.ModTime())
}

// recordFreshness persists obj's content hash against its shared-library
// path once a build succeeds, so a future process with an empty in-memory
// state can still skip an unchanged rebuild.
func (d *Driver) recordFreshness(obj *Object) {
	if d.Cache == nil {
		return
	}

	contents, err := os.ReadFile(obj.SourcePath)
	if err != nil {
		return
	}

	hash := fmt.Sprintf("%x", xxh3.Hash(contents))

	if err := d.Cache.Record(obj.Name, hash, obj.SharedPath); err != nil {
		d.log.Warn("cachedb: record freshness failed", slog.String("name", obj.Name), slog.String("error", err.Error()))
	}
}

func (d *Driver) load(obj *Object) {
	obj.Stage = Loading

	lib, err := loadlib.Open(obj.SharedPath)
	if err != nil {
		obj.Err = fmt.Errorf("build: load %s: %w", obj.Name, err)

		return
	}

	entry, err := lib.Symbol(namestyle.ToSymbol(obj.Name))
	if err != nil {
		obj.Err = fmt.Errorf("build: resolve entry symbol for %s: %w", obj.Name, err)

		return
	}

	// entry is a raw native function pointer, not a Go value: there is
	// nothing to type-assert. The shared CakelispHostAPI calling convention
	// (internal/loadlib/abi.go) is what lets it be called as though it were
	// an env.MacroFunc/env.GeneratorFunc, so that's what's wrapped here.
	switch obj.Definition.Kind {
	case env.CompileTimeMacro:
		d.Env.Macros[obj.Name] = func(_ *env.Environment, _ env.Context, src *token.Array, start int, out *[]token.Token) bool {
			return loadlib.CallMacro(entry, src, start, out)
		}

	case env.CompileTimeGenerator:
		d.Env.Generators[obj.Name] = func(_ *env.Environment, _ env.Context, src *token.Array, start int, out *output.Buffer) bool {
			return loadlib.CallGenerator(entry, src, start, out)
		}
	}

	obj.Definition.Loaded = true
}

// resolveReferences implements spec.md §4.4 stage 5: for the pool of sites
// naming obj's now-loaded definition, clear any speculative splice content
// and re-run EvaluateGenerate so the macro/generator path now fires.
func (d *Driver) resolveReferences(obj *Object) int {
	if obj.Stage != Finished {
		return 0
	}

	obj.Stage = ResolvingReferences

	resolved := 0

	pool := d.Env.PoolFor(obj.Name)
	for _, site := range pool.Lookup(obj.Name) {
		if site.Resolved {
			continue
		}

		site.Splice.Clear()
		d.Eval.EvaluateGenerate(site.Ctx, site.Source, site.Start, site.Splice)
		site.Resolved = true
		resolved++

		if owner, ok := d.Env.Lookup(site.Ctx.Definition); ok {
			owner.StatusFor(obj.Name).Transition(env.Resolved)
		}
	}

	return resolved
}

// uniqueScratchName returns a collision-free base name for a build object
// within one concurrent wave; it suffixes each object's temporary output
// path.
func uniqueScratchName(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
