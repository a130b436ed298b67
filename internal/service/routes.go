package service

import (
	"os"
	"regexp"
	"strings"
)

// Route declaration patterns for the supported frameworks. A regex
// sweep over source text is deliberately shallow; it finds decorator
// and method-call style registrations without parsing the language.
var (
	fastapiRouteRe = regexp.MustCompile(`(?i)@(?:router|app)\.(get|post|put|delete|patch|options)\s*\(\s*["']([^"']+)["']`)
	expressRouteRe = regexp.MustCompile(`(?i)(?:app|router|route)\.(get|post|put|delete|patch|options)\s*\(\s*["']([^"']+)["']`)
)

// ParseFastAPIRoutes finds FastAPI route decorators in Python source
func ParseFastAPIRoutes(content string) []Endpoint {
	return parseRoutes(fastapiRouteRe, content, FrameworkFastAPI)
}

// ParseExpressRoutes finds Express route registrations in JS/TS source
func ParseExpressRoutes(content string) []Endpoint {
	return parseRoutes(expressRouteRe, content, FrameworkExpress)
}

func parseRoutes(re *regexp.Regexp, content, framework string) []Endpoint {
	matches := re.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	endpoints := make([]Endpoint, 0, len(matches))
	for _, m := range matches {
		endpoints = append(endpoints, Endpoint{
			Method:    strings.ToUpper(m[1]),
			Path:      m[2],
			Framework: framework,
		})
	}
	return endpoints
}

// DetectEndpoints reads one file and returns any routes it declares,
// choosing the parser by file extension. Unreadable or unsupported
// files yield nothing.
func DetectEndpoints(filePath string) []Endpoint {
	var py bool
	switch {
	case strings.HasSuffix(filePath, ".py"):
		py = true
	case strings.HasSuffix(filePath, ".js"), strings.HasSuffix(filePath, ".ts"):
	default:
		return nil
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil
	}

	if py {
		return ParseFastAPIRoutes(string(content))
	}
	return ParseExpressRoutes(string(content))
}
