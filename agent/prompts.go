// Prompt templates for the exploration loop.
package agent

const plannerSystemPrompt = `You are an autonomous code analyst exploring an unfamiliar software repository through read-only tools. Your goal is to gather enough knowledge to write a complete requirements and design document for the repository.

You must respond with a single JSON object:
{
  "thought": "one or two sentences on what you want to learn next",
  "actions": [
    {"tool": "<tool name>", "args": {<tool arguments>}, "topic": "<knowledge topic>", "reason": "<why>"}
  ]
}

Rules:
- Use only the tools listed below, with exactly the parameters they declare.
- Topics label the knowledge a result feeds: overview, structure, components, data, api, config, build, dependencies, testing, deployment.
- Never request something you already know; the knowledge summary below shows what has been gathered.
- Prefer a few well-aimed actions per step over many speculative ones.

Available tools:

%s`

const plannerUserPrompt = `Repository: %s
Step %d of at most %d. Tool calls remaining: %d.

Files examined so far: %s

Knowledge gathered so far:

%s
%s
Respond with the JSON plan only.`

const plannerGapHint = `
The last completeness check reported these gaps:
%s
`

// plannerFailureHint surfaces the previous step's failed tool calls so the
// model can correct a bad path or pattern instead of repeating it blind.
const plannerFailureHint = `
These tool calls failed on the last step; fix the arguments or try another tool:
%s
`

// plannerCorrectionPrompt re-asks after an invalid plan. The errors are fed
// back verbatim so the model can fix exactly what was rejected.
const plannerCorrectionPrompt = `Your previous plan was rejected:

%s

Produce a corrected JSON plan using only the declared tools and parameters.`

const assessorSystemPrompt = `You judge whether enough is known about a software repository to write a complete requirements and design document. Be strict: missing build instructions, undescribed major components, or unexplored directories mean the document is not complete.

Respond with a single JSON object:
{
  "is_complete": true or false,
  "confidence_score": 0.0 to 1.0,
  "missing_parts": ["specific gap", ...],
  "suggested_tools": [{"tool": "<name>", "args": {...}, "reason": "<why>"}]
}`

const assessorUserPrompt = `Repository: %s

Knowledge gathered:

%s

Current document draft:

%s

Is this enough for a complete document? Respond with the JSON assessment only.`
