package service

import "fmt"

const testGenPromptTemplate = `You are a Senior QA Automation Engineer. Your task is to generate a professional, executable API test case.

CONTEXT:
Project Name: %s
Framework: %s
HTTP Method: %s
API Path: %s

INSTRUCTIONS:
1. Write a Python test case that uses the 'pytest' framework and 'httpx' library.
2. The test should verify the status code and at least one other property of the response.
3. Keep the code concise and production-grade.
4. DO NOT include any explanatory text outside the JSON.

OUTPUT FORMAT (Strict JSON only):
{
  "description": "Short description of what the test does",
  "priority": "HIGH or MEDIUM or LOW",
  "test_code": "import pytest\nimport httpx\n..."
}`

const healingPromptTemplate = `You are a Senior QA Automation Engineer. A test case for an API endpoint has failed because the API metadata changed.
Your task is to 'heal' the test code by updating it to reflect the new signature.

CONTEXT:
Framework: %s
New API: %s %s

OLD TEST CODE:
%s

INSTRUCTIONS:
1. Identify how the new signature (method/path) differs from what the test exercises.
2. Update the 'pytest' + 'httpx' code to use the correct new method and path.
3. Keep the existing assertion logic the same unless it's obviously broken by the change.
4. DO NOT include any explanatory text outside the JSON.

OUTPUT FORMAT (Strict JSON only):
{
  "reason": "Detailed explanation of what was changed and why it was healed.",
  "patched_test_code": "import pytest\nimport httpx\n..."
}`

func testGenPrompt(projectName, framework, method, path string) string {
	return fmt.Sprintf(testGenPromptTemplate, projectName, framework, method, path)
}

func healingPrompt(framework, method, path, oldTestCode string) string {
	return fmt.Sprintf(healingPromptTemplate, framework, method, path, oldTestCode)
}
