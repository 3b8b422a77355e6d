// gtest checks the translator against golden results. A fixture is either a
// single .vm file or a directory of them; its golden file records the
// assembly produced and the machine state after emulating it.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xplshn/vmt/pkg/asm"
	"github.com/xplshn/vmt/pkg/config"
	"github.com/xplshn/vmt/pkg/cpu"
	"github.com/xplshn/vmt/pkg/linker"
	"github.com/xplshn/vmt/pkg/util"
)

type Translation struct {
	Assembly []string      `json:"assembly,omitempty"`
	Checksum string        `json:"checksum,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Emulation struct {
	Cycles    uint64  `json:"cycles"`
	Halted    bool    `json:"halted"`
	Registers []int16 `json:"registers"`
	Stack     []int16 `json:"stack"`
	Error     string  `json:"error,omitempty"`
}

type TargetResult struct {
	SourceHash string      `json:"source_hash"`
	Flags      string      `json:"flags,omitempty"`
	Translate  Translation `json:"translate"`
	Run        *Emulation  `json:"run,omitempty"`
}

type FileTestResult struct {
	File      string        `json:"file"`
	Status    string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message   string        `json:"message,omitempty"`
	Diff      string        `json:"diff,omitempty"`
	Reference *TargetResult `json:"reference,omitempty"`
	Target    *TargetResult `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	vmFlags        = flag.String("flags", "", "Translator flags applied to every fixture (space-separated, e.g. \"-Fno-source-comments\").")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given fixture.")
	testFiles      = flag.String("test-files", "tests/*.vm tests/*", "Glob pattern(s) for fixtures to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Fixtures to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	cycles         = flag.Uint64("cycles", 200000, "Instructions to emulate per fixture. 0 disables emulation.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	runs           = flag.Int("runs", 5, "Number of times to translate each fixture to find the minimum duration.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	useCache       = flag.Bool("cached", false, "Reuse passing results from the previous report when the fixture is unchanged.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to fixture dir).")
)

const (
	cRed     = "\x1b[91m"
	cYellow  = "\x1b[93m"
	cGreen   = "\x1b[92m"
	cCyan    = "\x1b[96m"
	cMagenta = "\x1b[95m"
	cBold    = "\x1b[1m"
	cNone    = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *runs < 1 {
		*runs = 1
	}
	// Translator warnings would interleave with the report.
	util.Output = io.Discard
	setupInterruptHandler()

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden)
		return
	}

	handleRunTestSuite()
}

func setupInterruptHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled.\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(fixture string) string {
	jsonFileName := "." + filepath.Base(fixture) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(fixture), jsonFileName)
}

// hashFixture computes the xxhash of every .vm file making up the fixture,
// in the order the linker would read them.
func hashFixture(path string) (string, error) {
	files := []string{path}
	if info, err := os.Stat(path); err != nil {
		return "", err
	} else if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return "", err
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == linker.Ext {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	h := xxhash.New()
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return "", err
		}
		io.WriteString(h, filepath.Base(file))
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func newConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.ProcessFlags(strings.Fields(*vmFlags))
	return cfg
}

// translateAndRun links the fixture, then assembles and emulates the result.
// A translation failure is a result, not an error: fixtures may be expected
// to fail.
func translateAndRun(fixture, fixtureHash string) (*TargetResult, error) {
	sources, err := linker.Load(fixture, 0)
	if err != nil {
		return nil, err
	}
	cfg := newConfig()
	result := &TargetResult{SourceHash: fixtureHash, Flags: *vmFlags}

	var prog *linker.Program
	for i := 0; i < *runs; i++ {
		start := time.Now()
		p, err := linker.Link(sources, cfg)
		d := time.Since(start)
		if i == 0 || d < result.Translate.Duration {
			result.Translate.Duration = d
		}
		if err != nil {
			// Paths are made relative so golden files survive a move.
			result.Translate.Error = strings.ReplaceAll(err.Error(), filepath.Dir(fixture)+string(filepath.Separator), "")
			return result, nil
		}
		prog = p
	}
	result.Translate.Assembly = prog.Lines
	result.Translate.Checksum = fmt.Sprintf("%016x", prog.Checksum())

	if *cycles == 0 || !cfg.IsFeatureEnabled(config.FeatBootstrap) {
		return result, nil
	}
	result.Run = emulate(prog, cfg)
	return result, nil
}

func emulate(prog *linker.Program, cfg *config.Config) *Emulation {
	em := &Emulation{}
	bin, err := asm.AssembleLines(prog.Lines)
	if err != nil {
		em.Error = err.Error()
		return em
	}
	machine := cpu.New(bin.Words)
	if err := machine.Run(*cycles); err != nil {
		if !errors.Is(err, cpu.ErrPCOutOfRange) {
			em.Error = err.Error()
		}
		em.Halted = true
	}
	em.Cycles = machine.Cycles
	em.Registers = append([]int16(nil), machine.RAM[cpu.SP:cpu.THAT+1]...)
	em.Stack = machine.Stack(cfg.StackBase)
	return em
}

func handleGenerateGolden(fixture string) {
	log.Printf("Generating golden file for %s...\n", fixture)

	fixtureHash, err := hashFixture(fixture)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not hash fixture %s: %v\n", cRed, cNone, fixture, err)
	}

	targetResult, err := translateAndRun(fixture, fixtureHash)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n", cRed, cNone, fixture, err)
	}

	jsonData, err := json.MarshalIndent(targetResult, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(fixture)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}

	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}

	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite() {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No fixtures found matching the pattern(s).")
		return
	}

	previousResults := make(TestSuiteResults)
	outputFile := *outputJSON
	if *jsonDir != "" {
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}
	if prevData, err := os.ReadFile(outputFile); err == nil {
		if json.Unmarshal(prevData, &previousResults) != nil {
			log.Printf("%s[WARN]%s Could not parse previous results file %s. Cache will not be used.\n", cYellow, cNone, outputFile)
			previousResults = make(TestSuiteResults)
		}
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, t.hash, previousResults)
			}
		}()
	}

	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fixtureHash, err := hashFixture(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read fixture for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fixtureHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fixtureHash] = file
		tasks <- task{file, fixtureHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}

	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)

	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func testFile(file, fixtureHash string, previousResults TestSuiteResults) *FileTestResult {
	if *useCache {
		if prev, ok := previousResults[file]; ok && prev.Status == "PASS" && prev.Target != nil &&
			prev.Target.SourceHash == fixtureHash && prev.Target.Flags == *vmFlags {
			cached := *prev
			cached.Message += " (cached)"
			return &cached
		}
	}

	goldenFile := getJSONPath(file)
	if _, err := os.Stat(goldenFile); err != nil {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file"}
	}
	return testWithGoldenFile(file, goldenFile, fixtureHash)
}

func testWithGoldenFile(file, goldenFile, fixtureHash string) *FileTestResult {
	goldenData, err := os.ReadFile(goldenFile)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var goldenResult TargetResult
	if err := json.Unmarshal(goldenData, &goldenResult); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}
	if goldenResult.Flags != *vmFlags {
		return &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Golden file was generated with flags %q", goldenResult.Flags)}
	}

	targetResult, err := translateAndRun(file, fixtureHash)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error(), Reference: &goldenResult}
	}

	result := compareResults(file, &goldenResult, targetResult)
	if goldenResult.SourceHash != fixtureHash && result.Status == "PASS" {
		result.Message += " (fixture changed since golden file was written)"
	}
	return result
}

var ignoreTiming = cmpopts.IgnoreFields(Translation{}, "Duration")

func compareResults(file string, reference, target *TargetResult) *FileTestResult {
	result := &FileTestResult{File: file, Reference: reference, Target: target}

	if reference.Translate.Error != "" || target.Translate.Error != "" {
		if diff := cmp.Diff(reference.Translate.Error, target.Translate.Error); diff != "" {
			result.Status = "FAIL"
			result.Message = "Translation outcome differs"
			result.Diff = diff
			return result
		}
		result.Status = "PASS"
		result.Message = "Translation failed as expected"
		return result
	}

	if diff := cmp.Diff(reference.Translate, target.Translate, ignoreTiming); diff != "" {
		result.Status = "FAIL"
		result.Message = "Assembly mismatch"
		result.Diff = diff
		return result
	}
	if diff := cmp.Diff(reference.Run, target.Run); diff != "" {
		result.Status = "FAIL"
		result.Message = "Emulated machine state mismatch"
		result.Diff = diff
		return result
	}

	result.Status = "PASS"
	result.Message = fmt.Sprintf("%d lines", len(target.Translate.Assembly))
	if target.Run != nil {
		result.Message += fmt.Sprintf(", %d cycles", target.Run.Cycles)
	}
	return result
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var totalRef, totalTarget time.Duration
	timed := 0

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if result.Reference == nil || result.Target == nil {
			continue
		}
		timed++
		refDur, targetDur := result.Reference.Translate.Duration, result.Target.Translate.Duration
		totalRef += refDur
		totalTarget += targetDur

		if *verbose {
			refColor, targetColor := cNone, cNone
			if targetDur < refDur {
				targetColor = cMagenta
			} else if refDur < targetDur {
				refColor = cMagenta
			}
			fmt.Printf("  [golden: %s%s%s | current: %s%s%s]\n",
				refColor, formatDuration(refDur), cNone,
				targetColor, formatDuration(targetDur), cNone)
		}
	}

	fmt.Println("======================================================================")
	fmt.Printf("%sSummary:%s %s%d passed%s, %s%d failed%s, %s%d skipped%s, %s%d errors%s\n",
		cBold, cNone,
		cGreen, passed, cNone,
		cRed, failed, cNone,
		cYellow, skipped, cNone,
		cRed, errored, cNone)
	if timed > 0 {
		fmt.Printf("Translation time over %d fixtures: golden %s, current %s\n",
			timed, formatDuration(totalRef), formatDuration(totalTarget))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		lineWithIndent := "    " + line
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString(lineWithIndent)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

// expandGlobPatterns accepts .vm files and directories holding them.
func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if seen[absFile] {
				continue
			}
			info, err := os.Stat(absFile)
			if err != nil {
				continue
			}
			if info.IsDir() || (info.Mode().IsRegular() && filepath.Ext(absFile) == linker.Ext) {
				allFiles = append(allFiles, absFile)
				seen[absFile] = true
			}
		}
	}
	return allFiles, nil
}
