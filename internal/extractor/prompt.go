package extractor

// extractionPrompt instructs the vision model to return a single JSON object
// with exactly the named keys. The key set, types and semantic instructions
// are pinned by the prompt version: change any of them and the version must
// change with them, because extractor_version is part of every audit record.
const extractionPrompt = `Eres un asistente que extrae datos de documentos catastrales españoles.
Analiza las imágenes adjuntas y devuelve UN ÚNICO objeto JSON, sin texto adicional,
con exactamente estas claves:

{
  "referencia_catastral": "<string: referencia catastral completa>",
  "superficie_grafica_m2": <number: superficie gráfica en metros cuadrados>,
  "municipio": "<string: municipio>",
  "vertices_coordenadas": [[x, y], ...]
}

Reglas:
- "referencia_catastral": copia el identificador alfanumérico tal como aparece.
- "superficie_grafica_m2": solo el valor numérico, sin unidades ni separadores de miles.
- "municipio": el nombre del municipio, sin provincia.
- "vertices_coordenadas": lista de pares [x, y] del plano si el documento los incluye;
  omite la clave si no hay coordenadas de vértices.
- Si un dato no aparece en el documento, omite su clave. No inventes valores.`
