// Command skein maintains an incremental semantic knowledge graph:
// ingest summarized content, resolve topics, classify edges, project
// 3D positions, and serve the result over HTTP or MCP.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "project":
		err = runProject(os.Args[2:])
	case "clusters":
		err = runClusters(os.Args[2:])
	case "topics":
		err = runTopics(os.Args[2:])
	case "graphs":
		err = runGraphs(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("skein %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`skein %s - incremental semantic knowledge graph

Usage:
  skein <command> [arguments]

Commands:
  ingest <file.json>...  Ingest extraction events (title, summary, link, topics)
  search <query>         Semantic search over topics and items
  ask <question>         Answer a question from ingested items (needs LLM)
  project                Recompute 3D topic positions
  clusters               Detect and print topic communities
  topics                 List topics with uses and positions
  graphs                 List graphs; 'graphs create <name>' adds one
  stats                  Show database statistics and config provenance
  serve                  Serve the graph API over HTTP (--port 7466)
  mcp                    Serve graph tools over MCP stdio
  version                Print version

Global Flags:
  --db <path>            SQLite database path
  --config <path>        Config file (default ~/.skein/config.yaml)
  --graph <id>           Graph to operate on (default: the default graph)
  --embed <prov/model>   Embedding provider, e.g. ollama/nomic-embed-text
  --llm <prov/model>     Classifier model, e.g. google/gemini-2.5-flash
  --log-level <level>    debug, info, warn, error

Environment:
  SKEIN_DB, SKEIN_EMBED, SKEIN_LLM, SKEIN_LLM_CLASSIFY
  GEMINI_API_KEY / GOOGLE_API_KEY / OPENROUTER_API_KEY
`, version)
}
