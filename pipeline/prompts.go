package pipeline

// summarizeSystemPrompt drives the document summary stage.
const summarizeSystemPrompt = `You summarize documents for a knowledge base.
Write a single paragraph of at most three sentences capturing what the
document is about and what a reader would learn from it. Respond with the
paragraph only, no preamble.`

// categorizeSystemPrompt drives the optional categorization stage. The
// response must be a bare JSON array so parsing stays trivial.
const categorizeSystemPrompt = `You assign topic categories to documents.
Given a document, respond with a JSON array of 1 to 5 short lowercase
category labels, for example ["databases","go","performance"]. Respond with
the JSON array only, no other text.`
